// Package assemble turns resolved candidates into mention rows and diffs them
// against what is already stored.
package assemble

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mention-lab/internal/domain"
	"mention-lab/internal/observability"
	"mention-lab/internal/storage"
)

// Action is what Apply does with one planned row.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionNoop   Action = "noop"
)

// Row is a planned mention with its action.
type Row struct {
	Mention      *domain.Mention
	Action       Action
	PrevTokenKey string // stored token_key for updates
}

// Plan is the diff between resolved candidates and stored mentions.
type Plan struct {
	Rows      []Row
	Inserts   int
	Updates   int
	Noops     int
	Collapsed int // candidates dropped by dedupe or precedence
	Applied   int // rows written by Apply
}

// Writes returns the rows Apply will upsert.
func (p *Plan) Writes() []*domain.Mention {
	var out []*domain.Mention
	for _, r := range p.Rows {
		if r.Action != ActionNoop {
			out = append(out, r.Mention)
		}
	}
	return out
}

// Assembler plans and applies mention upserts.
type Assembler struct {
	mentions storage.MentionStore
	logger   *zap.Logger
}

// New creates a new Assembler.
func New(mentions storage.MentionStore, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{mentions: mentions, logger: logger}
}

// Plan dedupes candidates, collapses each (post, token) to its highest
// precedence source, and classifies every row against stored token keys.
func (a *Assembler) Plan(ctx context.Context, candidates []domain.MentionCandidate) (*Plan, error) {
	kept, collapsed := Collapse(candidates)

	plan := &Plan{Collapsed: collapsed}
	if len(kept) == 0 {
		return plan, nil
	}

	keys := make([]domain.MentionKey, len(kept))
	for i, c := range kept {
		keys[i] = c.Key()
	}
	existing, err := a.mentions.ExistingTokenKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load existing mentions: %w", err)
	}

	plan.Rows = make([]Row, 0, len(kept))
	for _, c := range kept {
		row := Row{Mention: domain.FromCandidate(c)}
		prev, ok := existing[c.Key()]
		switch {
		case !ok:
			row.Action = ActionInsert
			plan.Inserts++
		case prev != c.TokenKey:
			row.Action = ActionUpdate
			row.PrevTokenKey = prev
			plan.Updates++
		default:
			row.Action = ActionNoop
			plan.Noops++
		}
		plan.Rows = append(plan.Rows, row)
	}

	observability.RecordPlan(plan.Inserts, plan.Updates, plan.Noops)
	a.logger.Info("mention plan",
		zap.Int("insert", plan.Inserts),
		zap.Int("update", plan.Updates),
		zap.Int("noop", plan.Noops),
		zap.Int("collapsed", plan.Collapsed),
	)
	return plan, nil
}

// Apply upserts the plan's insert and update rows in one call.
func (a *Assembler) Apply(ctx context.Context, plan *Plan) (*Plan, error) {
	writes := plan.Writes()
	if len(writes) == 0 {
		return plan, nil
	}
	if err := a.mentions.Upsert(ctx, writes); err != nil {
		return nil, fmt.Errorf("apply mention plan: %w", err)
	}
	plan.Applied = len(writes)

	for _, r := range plan.Rows {
		if r.Action == ActionUpdate {
			a.logger.Debug("mention token changed",
				zap.String("post_id", r.Mention.PostID),
				zap.String("trigger_key", r.Mention.TriggerKey),
				zap.String("from", r.PrevTokenKey),
				zap.String("to", r.Mention.TokenKey),
			)
		}
	}
	return plan, nil
}

// Collapse keeps the first candidate per (PostID, TriggerKey), then one
// candidate per (PostID, TokenKey): the highest source precedence, first on
// ties. Input order is preserved. Returns the survivors and how many were dropped.
func Collapse(candidates []domain.MentionCandidate) ([]domain.MentionCandidate, int) {
	type postToken struct{ post, token string }

	seen := make(map[domain.MentionKey]struct{}, len(candidates))
	best := make(map[postToken]int)
	var deduped []domain.MentionCandidate

	for _, c := range candidates {
		k := c.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		pt := postToken{c.PostID, c.TokenKey}
		idx, ok := best[pt]
		if !ok {
			best[pt] = len(deduped)
			deduped = append(deduped, c)
			continue
		}
		if c.SourceKind.Precedence() > deduped[idx].SourceKind.Precedence() {
			deduped[idx] = c
		}
	}

	return deduped, len(candidates) - len(deduped)
}
