package syncexec

import (
	"context"
	"fmt"

	"github.com/OneClickTag/tracksync/internal/core/domain"
)

// Executor performs the idempotent external-API orchestration for one
// destination. Implementations locate previously created remote objects
// before creating new ones, because a reclaimed stuck job may re-run a sync
// whose side effects already landed.
type Executor interface {
	Execute(ctx context.Context, tracking *domain.Tracking) error
}

// ConversionAction is a remote ad-platform conversion action.
type ConversionAction struct {
	ID    string
	Name  string
	Label string
}

// AdsClient is the opaque ad-platform API surface consumed by the ads
// executor. Implementations either succeed or fail with a message; all error
// interpretation happens upstream.
type AdsClient interface {
	ListConversionActions(ctx context.Context, customerID string) ([]ConversionAction, error)
	CreateConversionAction(ctx context.Context, customerID, name string) (*ConversionAction, error)
}

// Entity is a remote tag-manager object (trigger or tag).
type Entity struct {
	ID   string
	Name string
}

// TagSpec describes a tag to create in the tag-manager workspace.
type TagSpec struct {
	Name            string
	Type            string
	TriggerID       string
	ConversionLabel string
}

// Tag types understood by the tag-manager API.
const (
	TagTypeAnalyticsEvent = "gaawe"
	TagTypeAdsConversion  = "awct"
)

// TagManagerClient is the opaque tag-manager API surface.
type TagManagerClient interface {
	EnsureWorkspace(ctx context.Context, tenantID string) (string, error)
	ListTriggers(ctx context.Context, workspaceID string) ([]Entity, error)
	CreateTrigger(ctx context.Context, workspaceID, name string) (*Entity, error)
	ListTags(ctx context.Context, workspaceID string) ([]Entity, error)
	CreateTag(ctx context.Context, workspaceID string, spec TagSpec) (*Entity, error)
}

// Remote object names are derived from the tracking id so that lookups are
// unambiguous across retries and across trackings with identical names.
func triggerName(tr *domain.Tracking) string {
	return fmt.Sprintf("%s - trigger (%s)", tr.Name, tr.ID)
}

func eventTagName(tr *domain.Tracking) string {
	return fmt.Sprintf("%s - event tag (%s)", tr.Name, tr.ID)
}

func adsTagName(tr *domain.Tracking) string {
	return fmt.Sprintf("%s - conversion tag (%s)", tr.Name, tr.ID)
}

func conversionActionName(tr *domain.Tracking) string {
	return fmt.Sprintf("%s (%s)", tr.Name, tr.ID)
}
