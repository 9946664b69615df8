package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/observability"
)

// CycleResult bundles the results of one scheduled cycle.
type CycleResult struct {
	Scan     *ScanResult
	Backfill *BackfillResult
	MaxSince *MaxSinceResult
	Started  time.Time
	Duration time.Duration
}

// RunCycle scans new posts, prices pending mentions, then refreshes peaks.
// The first failing step ends the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleResult, error) {
	res := &CycleResult{Started: o.now()}

	scan, err := o.ScanNew(ctx)
	if err != nil {
		return res, fmt.Errorf("scan: %w", err)
	}
	res.Scan = scan

	backfill, err := o.BackfillPending(ctx)
	res.Backfill = backfill
	if err != nil {
		return res, fmt.Errorf("backfill: %w", err)
	}

	maxSince, err := o.MaxSince(ctx)
	res.MaxSince = maxSince
	if err != nil {
		return res, fmt.Errorf("max since: %w", err)
	}

	res.Duration = o.now().Sub(res.Started)
	observability.RecordCycleSuccess(o.now().Unix())
	o.logger.Info("cycle complete", zap.Duration("duration", res.Duration))
	return res, nil
}
