package syncexec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
)

// TagManagerSync creates or locates the tag-manager trigger and tags for a
// tracking. It runs after the ads sync because the ads conversion tag
// consumes the conversion label that sync produces.
type TagManagerSync struct {
	client    TagManagerClient
	trackings storage.TrackingRepository
	log       *slog.Logger
}

// NewTagManagerSync creates a new tag-manager sync executor.
func NewTagManagerSync(client TagManagerClient, trackings storage.TrackingRepository, log *slog.Logger) *TagManagerSync {
	return &TagManagerSync{
		client:    client,
		trackings: trackings,
		log:       log.With("executor", "tag_manager"),
	}
}

func (s *TagManagerSync) Execute(ctx context.Context, tr *domain.Tracking) error {
	workspaceID := tr.WorkspaceID
	if workspaceID == "" {
		var err error
		workspaceID, err = s.client.EnsureWorkspace(ctx, tr.TenantID)
		if err != nil {
			return fmt.Errorf("tag manager sync: ensure workspace: %w", err)
		}
	}

	trigger, err := s.locateOrCreateTrigger(ctx, workspaceID, tr)
	if err != nil {
		return err
	}

	tags, err := s.client.ListTags(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("tag manager sync: list tags: %w", err)
	}

	eventTag, err := s.locateOrCreateTag(ctx, workspaceID, tags, TagSpec{
		Name:      eventTagName(tr),
		Type:      TagTypeAnalyticsEvent,
		TriggerID: trigger.ID,
	})
	if err != nil {
		return err
	}

	adsTagID := tr.AdsTagID
	if tr.HasDestination(domain.DestinationAds) {
		if tr.ConversionLabel == "" {
			// The ads sync runs first and must have produced the label.
			return fmt.Errorf("tag manager sync: conversion label missing for tracking %s - retry should resolve this", tr.ID)
		}
		adsTag, err := s.locateOrCreateTag(ctx, workspaceID, tags, TagSpec{
			Name:            adsTagName(tr),
			Type:            TagTypeAdsConversion,
			TriggerID:       trigger.ID,
			ConversionLabel: tr.ConversionLabel,
		})
		if err != nil {
			return err
		}
		adsTagID = adsTag.ID
	}

	if err := s.trackings.SetTagManagerArtifacts(ctx, tr.ID, workspaceID, trigger.ID, eventTag.ID, adsTagID); err != nil {
		return fmt.Errorf("tag manager sync: persist artifacts: %w", err)
	}

	tr.WorkspaceID = workspaceID
	tr.TriggerID = trigger.ID
	tr.TagID = eventTag.ID
	tr.AdsTagID = adsTagID
	return nil
}

func (s *TagManagerSync) locateOrCreateTrigger(ctx context.Context, workspaceID string, tr *domain.Tracking) (*Entity, error) {
	name := triggerName(tr)

	triggers, err := s.client.ListTriggers(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("tag manager sync: list triggers: %w", err)
	}
	for i := range triggers {
		if triggers[i].Name == name {
			s.log.Debug("reusing existing trigger", "tracking_id", tr.ID, "trigger_id", triggers[i].ID)
			return &triggers[i], nil
		}
	}

	trigger, err := s.client.CreateTrigger(ctx, workspaceID, name)
	if err != nil {
		return nil, fmt.Errorf("tag manager sync: create trigger: %w", err)
	}
	s.log.Info("created trigger", "tracking_id", tr.ID, "trigger_id", trigger.ID)
	return trigger, nil
}

func (s *TagManagerSync) locateOrCreateTag(ctx context.Context, workspaceID string, existing []Entity, spec TagSpec) (*Entity, error) {
	for i := range existing {
		if existing[i].Name == spec.Name {
			return &existing[i], nil
		}
	}

	tag, err := s.client.CreateTag(ctx, workspaceID, spec)
	if err != nil {
		return nil, fmt.Errorf("tag manager sync: create tag %q: %w", spec.Name, err)
	}
	s.log.Info("created tag", "tag_id", tag.ID, "tag_type", spec.Type)
	return tag, nil
}
