package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
)

type TrackingRepo struct {
	q sqlx.ExtContext
}

func (r *TrackingRepo) GetByID(ctx context.Context, id string) (*domain.Tracking, error) {
	var t domain.Tracking
	var destinations []string
	row := r.q.QueryRowxContext(ctx, `
		SELECT id, tenant_id, customer_id, name, destinations, status, last_error,
		       workspace_id, trigger_id, tag_id, conversion_action_id, conversion_label, ads_tag_id
		FROM trackings WHERE id = $1`, id)
	err := row.Scan(
		&t.ID, &t.TenantID, &t.CustomerID, &t.Name, pq.Array(&destinations),
		&t.Status, &t.LastError, &t.WorkspaceID, &t.TriggerID, &t.TagID,
		&t.ConversionActionID, &t.ConversionLabel, &t.AdsTagID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tracking: %w", err)
	}
	for _, d := range destinations {
		t.Destinations = append(t.Destinations, domain.Destination(d))
	}
	return &t, nil
}

func (r *TrackingRepo) SetAdsArtifacts(ctx context.Context, id, conversionActionID, conversionLabel string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE trackings SET conversion_action_id = $2, conversion_label = $3 WHERE id = $1`,
		id, conversionActionID, conversionLabel)
	if err != nil {
		return fmt.Errorf("failed to set ads artifacts: %w", err)
	}
	return requireRow(res)
}

func (r *TrackingRepo) SetTagManagerArtifacts(ctx context.Context, id, workspaceID, triggerID, tagID, adsTagID string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE trackings
		SET workspace_id = $2, trigger_id = $3, tag_id = $4, ads_tag_id = $5
		WHERE id = $1`, id, workspaceID, triggerID, tagID, adsTagID)
	if err != nil {
		return fmt.Errorf("failed to set tag manager artifacts: %w", err)
	}
	return requireRow(res)
}

func (r *TrackingRepo) MarkActive(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE trackings SET status = 'active', last_error = '' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark tracking active: %w", err)
	}
	return requireRow(res)
}

func (r *TrackingRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE trackings SET status = 'failed', last_error = $2 WHERE id = $1`, id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark tracking failed: %w", err)
	}
	return requireRow(res)
}

type RecommendationRepo struct {
	q sqlx.ExtContext
}

func (r *RecommendationRepo) MarkCreated(ctx context.Context, trackingID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE recommendations SET status = 'created', updated_at = NOW() WHERE tracking_id = $1`,
		trackingID)
	if err != nil {
		return fmt.Errorf("failed to mark recommendation created: %w", err)
	}
	return nil
}

func (r *RecommendationRepo) MarkFailed(ctx context.Context, trackingID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE recommendations SET status = 'failed', updated_at = NOW() WHERE tracking_id = $1`,
		trackingID)
	if err != nil {
		return fmt.Errorf("failed to mark recommendation failed: %w", err)
	}
	return nil
}
