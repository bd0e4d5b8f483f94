package googleapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/OneClickTag/tracksync/internal/syncexec"
)

// TagManagerConfig holds Tag Manager API settings.
type TagManagerConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
}

// TagManagerClient implements syncexec.TagManagerClient against the Tag
// Manager REST surface.
type TagManagerClient struct {
	cfg        TagManagerConfig
	httpClient *http.Client
}

// NewTagManagerClient creates a new tag-manager API client.
func NewTagManagerClient(cfg TagManagerConfig) *TagManagerClient {
	return &TagManagerClient{
		cfg:        cfg,
		httpClient: newHTTPClient(),
	}
}

func (c *TagManagerClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.AccessToken}
}

type entityPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnsureWorkspace returns the tenant's working workspace, creating it server
// side if the tenant has none yet.
func (c *TagManagerClient) EnsureWorkspace(ctx context.Context, tenantID string) (string, error) {
	url := fmt.Sprintf("%s/tenants/%s/workspaces:ensure", c.cfg.BaseURL, tenantID)

	var resp struct {
		WorkspaceID string `json:"workspaceId"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, url, c.headers(), nil, &resp); err != nil {
		return "", fmt.Errorf("ensure workspace: %w", err)
	}
	return resp.WorkspaceID, nil
}

func (c *TagManagerClient) ListTriggers(ctx context.Context, workspaceID string) ([]syncexec.Entity, error) {
	url := fmt.Sprintf("%s/workspaces/%s/triggers", c.cfg.BaseURL, workspaceID)

	var resp struct {
		Triggers []entityPayload `json:"triggers"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodGet, url, c.headers(), nil, &resp); err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return toEntities(resp.Triggers), nil
}

func (c *TagManagerClient) CreateTrigger(ctx context.Context, workspaceID, name string) (*syncexec.Entity, error) {
	url := fmt.Sprintf("%s/workspaces/%s/triggers", c.cfg.BaseURL, workspaceID)

	req := map[string]any{"name": name, "type": "customEvent"}
	var resp entityPayload
	if err := doJSON(ctx, c.httpClient, http.MethodPost, url, c.headers(), req, &resp); err != nil {
		return nil, fmt.Errorf("create trigger: %w", err)
	}
	return &syncexec.Entity{ID: resp.ID, Name: resp.Name}, nil
}

func (c *TagManagerClient) ListTags(ctx context.Context, workspaceID string) ([]syncexec.Entity, error) {
	url := fmt.Sprintf("%s/workspaces/%s/tags", c.cfg.BaseURL, workspaceID)

	var resp struct {
		Tags []entityPayload `json:"tags"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodGet, url, c.headers(), nil, &resp); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return toEntities(resp.Tags), nil
}

func (c *TagManagerClient) CreateTag(ctx context.Context, workspaceID string, spec syncexec.TagSpec) (*syncexec.Entity, error) {
	url := fmt.Sprintf("%s/workspaces/%s/tags", c.cfg.BaseURL, workspaceID)

	req := map[string]any{
		"name":      spec.Name,
		"type":      spec.Type,
		"triggerId": spec.TriggerID,
	}
	if spec.ConversionLabel != "" {
		req["conversionLabel"] = spec.ConversionLabel
	}
	var resp entityPayload
	if err := doJSON(ctx, c.httpClient, http.MethodPost, url, c.headers(), req, &resp); err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &syncexec.Entity{ID: resp.ID, Name: resp.Name}, nil
}

func toEntities(payloads []entityPayload) []syncexec.Entity {
	entities := make([]syncexec.Entity, 0, len(payloads))
	for _, p := range payloads {
		entities = append(entities, syncexec.Entity{ID: p.ID, Name: p.Name})
	}
	return entities
}
