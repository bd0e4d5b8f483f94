package health

import (
	"context"
	"errors"
	"testing"
)

func TestMonitor_AllHealthy(t *testing.T) {
	m := NewMonitor()
	m.RegisterCritical("store", func(ctx context.Context) error { return nil })
	m.RegisterOptional("broadcaster", func(ctx context.Context) error { return nil })

	report := m.CheckHealth(context.Background())
	if got := aggregate(report); got != StatusHealthy {
		t.Errorf("expected healthy, got %s", got)
	}
}

func TestMonitor_CriticalFailureWins(t *testing.T) {
	m := NewMonitor()
	m.RegisterCritical("store", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	m.RegisterOptional("broadcaster", func(ctx context.Context) error { return nil })

	report := m.CheckHealth(context.Background())
	if got := aggregate(report); got != StatusCritical {
		t.Errorf("expected critical, got %s", got)
	}
	if report["store"].Error == "" {
		t.Error("failing component must carry the error message")
	}
}

func TestMonitor_OptionalFailureDegrades(t *testing.T) {
	m := NewMonitor()
	m.RegisterCritical("store", func(ctx context.Context) error { return nil })
	m.RegisterOptional("broadcaster", func(ctx context.Context) error {
		return errors.New("redis down")
	})

	report := m.CheckHealth(context.Background())
	if got := aggregate(report); got != StatusDegraded {
		t.Errorf("expected degraded, got %s", got)
	}
}

func TestMonitor_ResultsAreCached(t *testing.T) {
	calls := 0
	m := NewMonitor()
	m.RegisterCritical("store", func(ctx context.Context) error {
		calls++
		return nil
	})

	m.CheckHealth(context.Background())
	m.CheckHealth(context.Background())

	if calls != 1 {
		t.Errorf("expected one probe within the cache window, got %d", calls)
	}
}
