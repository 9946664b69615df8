// Package orchestrator drives batch runs over posts and mentions.
// It coordinates: extract → resolve → persist, then price backfill and max-since.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/assemble"
	"mention-lab/internal/domain"
	"mention-lab/internal/pricing"
	"mention-lab/internal/resolve"
	"mention-lab/internal/storage"
)

// Default concurrency and pacing.
const (
	DefaultWorkers          = 4
	DefaultTokenParallelism = 2
	DefaultProgressInterval = 2 * time.Second
	DefaultScanLookback     = 24 * time.Hour
)

// Phase names a stage of a run in progress events.
type Phase string

const (
	PhaseExtract  Phase = "extract"
	PhaseResolve  Phase = "resolve"
	PhasePersist  Phase = "persist"
	PhaseBackfill Phase = "backfill"
	PhaseMaxSince Phase = "max_since"
)

// Progress is a throttled snapshot of a running phase.
type Progress struct {
	RunID     string        `json:"run_id"`
	Phase     Phase         `json:"phase"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Percent   float64       `json:"percent"`
	ETA       time.Duration `json:"eta"`
	Elapsed   time.Duration `json:"elapsed"`
	Done      bool          `json:"done"`
}

// ItemEvent reports the outcome of one backfill item.
type ItemEvent struct {
	RunID   string            `json:"run_id"`
	Ref     domain.MentionRef `json:"ref"`
	OK      bool              `json:"ok"`
	Reason  pricing.Reason    `json:"reason"`
	Updated bool              `json:"updated"`
	Price   *float64          `json:"price,omitempty"`
}

// Extractor finds candidates in post text.
type Extractor interface {
	Extract(postID, text string) []domain.MentionCandidate
}

// Resolver maps candidates to mints.
type Resolver interface {
	Resolve(ctx context.Context, candidates []domain.MentionCandidate) (*resolve.Result, error)
}

// Planner diffs and writes mention rows.
type Planner interface {
	Plan(ctx context.Context, candidates []domain.MentionCandidate) (*assemble.Plan, error)
	Apply(ctx context.Context, plan *assemble.Plan) (*assemble.Plan, error)
}

// PriceResolver prices one mention.
type PriceResolver interface {
	Resolve(ctx context.Context, req pricing.Request) (pricing.PriceResult, error)
}

// MaxSinceComputer computes peaks for all mentions of one token.
type MaxSinceComputer interface {
	Compute(ctx context.Context, token string, mentions []domain.MentionRef) ([]pricing.MaxSince, error)
}

// Orchestrator coordinates batch runs.
type Orchestrator struct {
	// Stores
	posts    storage.PostStore
	mentions storage.MentionStore
	cursor   storage.ScanCursorStore

	// Components
	extractor Extractor
	resolver  Resolver
	planner   Planner
	prices    PriceResolver
	maxSince  MaxSinceComputer

	// Options
	workers          int
	tokenParallelism int
	progressInterval time.Duration
	graceSeconds     int64
	scanLookback     time.Duration
	backfillLimit    int

	onProgress func(Progress)
	onItem     func(ItemEvent)

	logger *zap.Logger
	now    func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Stores
	Posts    storage.PostStore
	Mentions storage.MentionStore
	Cursor   storage.ScanCursorStore // required by ScanNew only

	// Components
	Extractor Extractor
	Resolver  Resolver
	Planner   Planner
	Prices    PriceResolver
	MaxSince  MaxSinceComputer

	Workers          int
	TokenParallelism int
	ProgressInterval time.Duration
	GraceSeconds     int64         // passed to every price request; 0 uses the resolver default
	ScanLookback     time.Duration // first ScanNew window when no cursor is stored
	BackfillLimit    int           // pending items per cycle; 0 means all

	OnProgress func(Progress)  // optional
	OnItem     func(ItemEvent) // optional

	Logger *zap.Logger
	Now    func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		posts:            opts.Posts,
		mentions:         opts.Mentions,
		cursor:           opts.Cursor,
		extractor:        opts.Extractor,
		resolver:         opts.Resolver,
		planner:          opts.Planner,
		prices:           opts.Prices,
		maxSince:         opts.MaxSince,
		workers:          opts.Workers,
		tokenParallelism: opts.TokenParallelism,
		progressInterval: opts.ProgressInterval,
		graceSeconds:     opts.GraceSeconds,
		scanLookback:     opts.ScanLookback,
		backfillLimit:    opts.BackfillLimit,
		onProgress:       opts.OnProgress,
		onItem:           opts.OnItem,
		logger:           opts.Logger,
		now:              opts.Now,
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	if o.tokenParallelism <= 0 {
		o.tokenParallelism = DefaultTokenParallelism
	}
	if o.progressInterval <= 0 {
		o.progressInterval = DefaultProgressInterval
	}
	if o.scanLookback <= 0 {
		o.scanLookback = DefaultScanLookback
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

func (o *Orchestrator) emit(p Progress) {
	if o.onProgress != nil {
		o.onProgress(p)
	}
}

// snapshot builds a progress event; ETA = elapsed / processed × remaining.
func snapshot(runID string, phase Phase, total, processed int, elapsed time.Duration, done bool) Progress {
	p := Progress{
		RunID:     runID,
		Phase:     phase,
		Total:     total,
		Processed: processed,
		Elapsed:   elapsed,
		Done:      done,
	}
	if total > 0 {
		p.Percent = float64(processed) * 100 / float64(total)
	}
	if processed > 0 && processed < total {
		p.ETA = time.Duration(float64(elapsed) / float64(processed) * float64(total-processed))
	}
	return p
}
