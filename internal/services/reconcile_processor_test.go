package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"dairyflow/internal/billing"
)

type countingReconciler struct {
	calls  atomic.Int32
	minAge atomic.Int64
}

func (c *countingReconciler) ReconcilePending(_ context.Context, olderThan time.Duration) (billing.ReconcileResult, error) {
	c.calls.Add(1)
	c.minAge.Store(int64(olderThan))
	return billing.ReconcileResult{}, nil
}

func TestDefaultReconcileProcessorConfig(t *testing.T) {
	config := DefaultReconcileProcessorConfig()

	if config.PollInterval != time.Minute {
		t.Errorf("expected PollInterval 1m, got %v", config.PollInterval)
	}
	if config.MinAge != 5*time.Minute {
		t.Errorf("expected MinAge 5m, got %v", config.MinAge)
	}
}

func TestReconcileProcessor_IsRunning(t *testing.T) {
	processor := NewReconcileProcessor(&countingReconciler{}, DefaultReconcileProcessorConfig(), nil)

	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestReconcileProcessor_StartTwice(t *testing.T) {
	processor := NewReconcileProcessor(&countingReconciler{}, DefaultReconcileProcessorConfig(), nil)

	processor.mu.Lock()
	processor.running = true
	processor.mu.Unlock()

	if err := processor.Start(context.Background()); err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestReconcileProcessor_StartWithoutReconciler(t *testing.T) {
	processor := NewReconcileProcessor(nil, DefaultReconcileProcessorConfig(), nil)

	if err := processor.Start(context.Background()); err == nil {
		t.Error("expected error without a reconciler")
	}
}

func TestReconcileProcessor_StopNotRunning(t *testing.T) {
	processor := NewReconcileProcessor(&countingReconciler{}, DefaultReconcileProcessorConfig(), nil)

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestReconcileProcessor_SweepsOnStart(t *testing.T) {
	r := &countingReconciler{}
	processor := NewReconcileProcessor(r, ReconcileProcessorConfig{
		PollInterval: 10 * time.Millisecond,
		MinAge:       time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := processor.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := r.calls.Load(); got < 2 {
		t.Errorf("expected at least 2 sweeps, got %d", got)
	}
	if got := time.Duration(r.minAge.Load()); got != time.Second {
		t.Errorf("expected min age 1s, got %v", got)
	}
	if processor.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}
