package domain

// Destination identifies an external service a tracking is synced to.
type Destination string

const (
	DestinationTagManager Destination = "tag_manager"
	DestinationAds        Destination = "ads"
	DestinationAnalytics  Destination = "analytics"
)

// TrackingStatus mirrors the outcome of the owning job.
type TrackingStatus string

const (
	TrackingStatusCreating TrackingStatus = "creating"
	TrackingStatusActive   TrackingStatus = "active"
	TrackingStatusFailed   TrackingStatus = "failed"
)

// Tracking is the conversion-tracking configuration being set up. The remote
// identifier fields are written by the sync executors as they create or locate
// objects in the external services.
type Tracking struct {
	ID           string         `db:"id"`
	TenantID     string         `db:"tenant_id"`
	CustomerID   string         `db:"customer_id"`
	Name         string         `db:"name"`
	Destinations []Destination  `db:"-"`
	Status       TrackingStatus `db:"status"`
	LastError    string         `db:"last_error"`

	// Tag-manager artifacts.
	WorkspaceID string `db:"workspace_id"`
	TriggerID   string `db:"trigger_id"`
	TagID       string `db:"tag_id"`

	// Ad-platform artifacts. AdsTagID is the tag-manager tag that fires the
	// conversion, distinct from the main analytics tag.
	ConversionActionID string `db:"conversion_action_id"`
	ConversionLabel    string `db:"conversion_label"`
	AdsTagID           string `db:"ads_tag_id"`
}

// HasDestination reports whether the tracking targets the given service.
func (t *Tracking) HasDestination(d Destination) bool {
	for _, dest := range t.Destinations {
		if dest == d {
			return true
		}
	}
	return false
}

// MissingArtifacts returns the remote identifiers the tracking's declared
// destinations require but which have not been produced yet. Empty means the
// sync is complete.
func (t *Tracking) MissingArtifacts() []string {
	var missing []string
	if t.TriggerID == "" {
		missing = append(missing, "trigger_id")
	}
	if t.TagID == "" {
		missing = append(missing, "tag_id")
	}
	if t.HasDestination(DestinationAds) {
		if t.ConversionLabel == "" {
			missing = append(missing, "conversion_label")
		}
		if t.AdsTagID == "" {
			missing = append(missing, "ads_tag_id")
		}
	}
	return missing
}

// RecommendationStatus is the state of the recommendation a tracking was
// created from.
type RecommendationStatus string

const (
	RecommendationStatusPending RecommendationStatus = "pending"
	RecommendationStatusCreated RecommendationStatus = "created"
	RecommendationStatusFailed  RecommendationStatus = "failed"
)
