package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dairyflow/internal/billing"
	"dairyflow/internal/log"
)

// Reconciler finishes interrupted two-phase payment writes.
type Reconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration) (billing.ReconcileResult, error)
}

// ReconcileProcessorConfig holds configuration for the reconcile processor
type ReconcileProcessorConfig struct {
	// PollInterval is how often pending payments are swept (default: 1m)
	PollInterval time.Duration

	// MinAge leaves younger pending rows alone so in-flight writes can
	// finish (default: 5m)
	MinAge time.Duration
}

// DefaultReconcileProcessorConfig returns sensible defaults
func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		PollInterval: time.Minute,
		MinAge:       5 * time.Minute,
	}
}

// ReconcileProcessor periodically sweeps pending payments.
type ReconcileProcessor struct {
	reconciler Reconciler
	config     ReconcileProcessorConfig
	logger     *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconcileProcessor(r Reconciler, config ReconcileProcessorConfig, logger *log.Logger) *ReconcileProcessor {
	if logger == nil {
		logger = log.Discard(log.ComponentWorker)
	}
	return &ReconcileProcessor{reconciler: r, config: config, logger: logger}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	if p.reconciler == nil {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor has no reconciler")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Reconcile processor started",
		"poll_interval", p.config.PollInterval,
		"min_age", p.config.MinAge)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Reconcile processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *ReconcileProcessor) sweep(ctx context.Context) {
	res, err := p.reconciler.ReconcilePending(ctx, p.config.MinAge)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to reconcile pending payments", log.FieldError, err)
		return
	}
	if res.Committed > 0 || res.Removed > 0 {
		p.logger.DebugContext(ctx, "Pending payments swept", "committed", res.Committed, "removed", res.Removed)
	}
}
