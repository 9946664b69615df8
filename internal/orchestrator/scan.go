package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mention-lab/internal/domain"
	"mention-lab/internal/observability"
	"mention-lab/internal/storage"
)

// ScanResult summarizes one Scan.
type ScanResult struct {
	RunID      string
	Scanned    int
	Detected   int
	Resolved   int
	Inserted   int
	Updated    int
	Noop       int
	Unresolved int
	Suppressed int
	Duration   time.Duration
}

// Scan extracts, resolves and persists mentions for posts.
// Rerunning over the same posts is idempotent.
func (o *Orchestrator) Scan(ctx context.Context, posts []*domain.Post) (*ScanResult, error) {
	start := o.now()
	res := &ScanResult{RunID: uuid.NewString(), Scanned: len(posts)}
	log := o.logger.With(zap.String("run_id", res.RunID))
	observability.RecordPostsScanned(len(posts))

	// Phase 1: Extract
	sometimes := rate.Sometimes{Interval: o.progressInterval}
	var candidates []domain.MentionCandidate
	for i, p := range posts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := o.extractor.Extract(p.PostID, p.Text)
		for _, c := range found {
			observability.RecordCandidate(string(c.SourceKind))
		}
		candidates = append(candidates, found...)
		sometimes.Do(func() {
			o.emit(snapshot(res.RunID, PhaseExtract, len(posts), i+1, o.now().Sub(start), false))
		})
	}
	res.Detected = len(candidates)
	o.emit(snapshot(res.RunID, PhaseExtract, len(posts), len(posts), o.now().Sub(start), true))
	observability.RecordRun(string(PhaseExtract), "ok", o.now().Sub(start).Seconds())
	log.Info("extraction complete", zap.Int("posts", len(posts)), zap.Int("candidates", len(candidates)))

	// Phase 2: Resolve
	phaseStart := o.now()
	resolved, err := o.resolver.Resolve(ctx, candidates)
	if err != nil {
		observability.RecordRun(string(PhaseResolve), "error", o.now().Sub(phaseStart).Seconds())
		return nil, fmt.Errorf("resolve candidates: %w", err)
	}
	res.Resolved = len(resolved.Candidates)
	res.Unresolved = resolved.UnresolvedTotal()
	res.Suppressed = resolved.Suppressed
	o.emit(snapshot(res.RunID, PhaseResolve, len(candidates), len(candidates), o.now().Sub(start), true))
	observability.RecordRun(string(PhaseResolve), "ok", o.now().Sub(phaseStart).Seconds())

	// Phase 3: Persist
	phaseStart = o.now()
	plan, err := o.planner.Plan(ctx, resolved.Candidates)
	if err != nil {
		observability.RecordRun(string(PhasePersist), "error", o.now().Sub(phaseStart).Seconds())
		return nil, fmt.Errorf("plan mentions: %w", err)
	}
	if _, err := o.planner.Apply(ctx, plan); err != nil {
		observability.RecordRun(string(PhasePersist), "error", o.now().Sub(phaseStart).Seconds())
		return nil, fmt.Errorf("persist mentions: %w", err)
	}
	res.Inserted = plan.Inserts
	res.Updated = plan.Updates
	res.Noop = plan.Noops
	o.emit(snapshot(res.RunID, PhasePersist, len(plan.Rows), len(plan.Rows), o.now().Sub(start), true))
	observability.RecordRun(string(PhasePersist), "ok", o.now().Sub(phaseStart).Seconds())

	res.Duration = o.now().Sub(start)
	log.Info("scan complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("detected", res.Detected),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("noop", res.Noop),
		zap.Int("unresolved", res.Unresolved),
		zap.Int("suppressed", res.Suppressed),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// ScanWindow scans posts created within [start, end].
func (o *Orchestrator) ScanWindow(ctx context.Context, start, end time.Time) (*ScanResult, error) {
	posts, err := o.posts.GetByTimeRange(ctx, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	return o.Scan(ctx, posts)
}

// ScanNew scans posts after the stored cursor and advances it.
// Without a cursor it starts ScanLookback before now.
func (o *Orchestrator) ScanNew(ctx context.Context) (*ScanResult, error) {
	if o.cursor == nil {
		return nil, errors.New("scan cursor store not configured")
	}

	now := o.now()
	from := &storage.ScanCursor{CreatedAt: now.Add(-o.scanLookback).UnixMilli()}
	cur, err := o.cursor.GetCursor(ctx)
	switch {
	case err == nil:
		from = cur
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load scan cursor: %w", err)
	}

	posts, err := o.posts.GetByTimeRange(ctx, from.CreatedAt, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}

	// the cursor post itself and earlier ties were scanned last time
	fresh := posts[:0]
	for _, p := range posts {
		if p.CreatedAt == from.CreatedAt && p.PostID <= from.PostID {
			continue
		}
		fresh = append(fresh, p)
	}

	res, err := o.Scan(ctx, fresh)
	if err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		last := fresh[len(fresh)-1]
		if err := o.cursor.SetCursor(ctx, &storage.ScanCursor{CreatedAt: last.CreatedAt, PostID: last.PostID}); err != nil {
			return nil, fmt.Errorf("advance scan cursor: %w", err)
		}
	}
	return res, nil
}
