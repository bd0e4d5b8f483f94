package syncexec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
)

// AdsSync locates or creates the ad-platform conversion action for a
// tracking and persists the conversion label the tag-manager sync consumes.
type AdsSync struct {
	client    AdsClient
	trackings storage.TrackingRepository
	log       *slog.Logger
}

// NewAdsSync creates a new ads sync executor.
func NewAdsSync(client AdsClient, trackings storage.TrackingRepository, log *slog.Logger) *AdsSync {
	return &AdsSync{
		client:    client,
		trackings: trackings,
		log:       log.With("executor", "ads"),
	}
}

func (s *AdsSync) Execute(ctx context.Context, tr *domain.Tracking) error {
	if !tr.HasDestination(domain.DestinationAds) {
		return nil
	}
	if tr.ConversionActionID != "" && tr.ConversionLabel != "" {
		// Already synced on an earlier attempt.
		return nil
	}

	name := conversionActionName(tr)

	actions, err := s.client.ListConversionActions(ctx, tr.CustomerID)
	if err != nil {
		return fmt.Errorf("ads sync: list conversion actions: %w", err)
	}

	var action *ConversionAction
	for i := range actions {
		if actions[i].Name == name {
			action = &actions[i]
			break
		}
	}

	if action == nil {
		action, err = s.client.CreateConversionAction(ctx, tr.CustomerID, name)
		if err != nil {
			return fmt.Errorf("ads sync: create conversion action: %w", err)
		}
		s.log.Info("created conversion action",
			"tracking_id", tr.ID, "conversion_action_id", action.ID)
	} else {
		s.log.Debug("reusing existing conversion action",
			"tracking_id", tr.ID, "conversion_action_id", action.ID)
	}

	if action.Label == "" {
		// Labels are provisioned asynchronously on the ad platform.
		return fmt.Errorf("ads sync: conversion label for action %s not yet available - retry should resolve this", action.ID)
	}

	if err := s.trackings.SetAdsArtifacts(ctx, tr.ID, action.ID, action.Label); err != nil {
		return fmt.Errorf("ads sync: persist artifacts: %w", err)
	}

	tr.ConversionActionID = action.ID
	tr.ConversionLabel = action.Label
	return nil
}
