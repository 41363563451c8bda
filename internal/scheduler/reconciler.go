package scheduler

import (
	"context"
	"time"

	"github.com/kroleg/homelab/internal/coordinator"
	"github.com/kroleg/homelab/internal/logger"
)

// Reconciler drives the coordinator's reconciliation cycle on a fixed
// interval, with a manual trigger channel for the admin "force
// re-optimize" operation.
type Reconciler struct {
	coord         *coordinator.Coordinator
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
	manualTrigger chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(
	coord *coordinator.Coordinator,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *Reconciler {
	return &Reconciler{
		coord:         coord,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start adopts the routes a previous run installed, runs one forced
// cycle, then begins the periodic loop.
func (r *Reconciler) Start(ctx context.Context) error {
	if err := r.coord.AdoptRoutes(ctx); err != nil {
		r.logger.Warn("failed to adopt existing routes", logger.Error(err))
	}
	if err := r.coord.ReconcileAll(ctx, true); err != nil {
		// Router or store trouble at boot is not fatal; the next tick
		// retries with the accumulated state intact.
		r.logger.Warn("initial reconciliation failed", logger.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	go func() {
		defer close(r.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.coord.ReconcileAll(ctx, false); err != nil {
					r.logger.Error("scheduled reconciliation failed",
						logger.Error(err))
				}
			case <-r.manualTrigger:
				r.logger.Info("manual reconciliation triggered")
				if err := r.coord.ReconcileAll(ctx, true); err != nil {
					r.logger.Error("manual reconciliation failed",
						logger.Error(err))
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reconciler, letting an in-flight cycle finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}
