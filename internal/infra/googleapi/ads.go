package googleapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/OneClickTag/tracksync/internal/syncexec"
)

// AdsConfig holds Google Ads API settings.
type AdsConfig struct {
	BaseURL        string `yaml:"base_url"`
	DeveloperToken string `yaml:"developer_token"`
}

// AdsClient implements syncexec.AdsClient against the Google Ads REST
// surface.
type AdsClient struct {
	cfg        AdsConfig
	httpClient *http.Client
}

// NewAdsClient creates a new ads API client.
func NewAdsClient(cfg AdsConfig) *AdsClient {
	return &AdsClient{
		cfg:        cfg,
		httpClient: newHTTPClient(),
	}
}

func (c *AdsClient) headers() map[string]string {
	return map[string]string{"developer-token": c.cfg.DeveloperToken}
}

type conversionActionPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

func (p conversionActionPayload) toDomain() syncexec.ConversionAction {
	return syncexec.ConversionAction{ID: p.ID, Name: p.Name, Label: p.Label}
}

// ListConversionActions returns every conversion action of the customer
// account. Newly created actions may report an empty label until the
// platform finishes provisioning them.
func (c *AdsClient) ListConversionActions(ctx context.Context, customerID string) ([]syncexec.ConversionAction, error) {
	url := fmt.Sprintf("%s/customers/%s/conversionActions", c.cfg.BaseURL, customerID)

	var resp struct {
		ConversionActions []conversionActionPayload `json:"conversionActions"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodGet, url, c.headers(), nil, &resp); err != nil {
		return nil, fmt.Errorf("list conversion actions: %w", err)
	}

	actions := make([]syncexec.ConversionAction, 0, len(resp.ConversionActions))
	for _, a := range resp.ConversionActions {
		actions = append(actions, a.toDomain())
	}
	return actions, nil
}

// CreateConversionAction creates a webpage conversion action.
func (c *AdsClient) CreateConversionAction(ctx context.Context, customerID, name string) (*syncexec.ConversionAction, error) {
	url := fmt.Sprintf("%s/customers/%s/conversionActions", c.cfg.BaseURL, customerID)

	req := map[string]any{
		"name":     name,
		"type":     "WEBPAGE",
		"category": "DEFAULT",
	}
	var resp conversionActionPayload
	if err := doJSON(ctx, c.httpClient, http.MethodPost, url, c.headers(), req, &resp); err != nil {
		return nil, fmt.Errorf("create conversion action: %w", err)
	}

	action := resp.toDomain()
	return &action, nil
}
