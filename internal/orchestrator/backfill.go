package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mention-lab/internal/domain"
	"mention-lab/internal/observability"
	"mention-lab/internal/pricing"
)

// BackfillResult summarizes one Backfill.
type BackfillResult struct {
	RunID     string
	Total     int
	Processed int
	OK        int
	Updated   int
	Failed    int
	Reasons   map[pricing.Reason]int
	Duration  time.Duration
}

// Backfill prices items with a bounded worker pool over a shared cursor.
// Misses are counted by reason; a storage error cancels the run and is returned.
func (o *Orchestrator) Backfill(ctx context.Context, items []domain.MentionRef) (*BackfillResult, error) {
	start := o.now()
	res := &BackfillResult{
		RunID:   uuid.NewString(),
		Total:   len(items),
		Reasons: make(map[pricing.Reason]int),
	}
	log := o.logger.With(zap.String("run_id", res.RunID))
	if len(items) == 0 {
		return res, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		next      atomic.Int64
		mu        sync.Mutex
		fatal     error
		wg        sync.WaitGroup
		sometimes = rate.Sometimes{Interval: o.progressInterval}
	)

	workers := o.workers
	if workers > len(items) {
		workers = len(items)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= len(items) || ctx.Err() != nil {
					return
				}
				item := items[i]

				pr, err := o.prices.Resolve(ctx, pricing.Request{
					PostID:       item.PostID,
					TokenKey:     item.TokenKey,
					GraceSeconds: o.graceSeconds,
				})
				if err != nil {
					mu.Lock()
					if fatal == nil {
						fatal = fmt.Errorf("price %s/%s: %w", item.PostID, item.TokenKey, err)
					}
					mu.Unlock()
					cancel()
					return
				}

				mu.Lock()
				res.Processed++
				res.Reasons[pr.Reason]++
				if pr.OK {
					res.OK++
				} else {
					res.Failed++
				}
				if pr.Updated {
					res.Updated++
				}
				processed := res.Processed
				mu.Unlock()

				if o.onItem != nil {
					o.onItem(ItemEvent{
						RunID:   res.RunID,
						Ref:     item,
						OK:      pr.OK,
						Reason:  pr.Reason,
						Updated: pr.Updated,
						Price:   pr.Price,
					})
				}
				sometimes.Do(func() {
					o.emit(snapshot(res.RunID, PhaseBackfill, len(items), processed, o.now().Sub(start), false))
				})
			}
		}()
	}
	wg.Wait()

	res.Duration = o.now().Sub(start)
	o.emit(snapshot(res.RunID, PhaseBackfill, len(items), res.Processed, res.Duration, true))

	if fatal != nil {
		observability.RecordRun(string(PhaseBackfill), "error", res.Duration.Seconds())
		log.Error("backfill aborted", zap.Int("processed", res.Processed), zap.Error(fatal))
		return res, fatal
	}

	observability.RecordRun(string(PhaseBackfill), "ok", res.Duration.Seconds())
	log.Info("backfill complete",
		zap.Int("total", res.Total),
		zap.Int("ok", res.OK),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
		zap.Any("reasons", res.Reasons),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// BackfillPending prices mentions that still have no price, oldest first.
func (o *Orchestrator) BackfillPending(ctx context.Context) (*BackfillResult, error) {
	items, err := o.mentions.ListPricePending(ctx, o.backfillLimit)
	if err != nil {
		return nil, fmt.Errorf("list pending mentions: %w", err)
	}
	return o.Backfill(ctx, items)
}
