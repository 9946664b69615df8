package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mention-lab/internal/domain"
	"mention-lab/internal/observability"
	"mention-lab/internal/pricing"
)

// MaxSinceResult summarizes one MaxSince run.
type MaxSinceResult struct {
	RunID    string
	Tokens   int
	Mentions int
	Priced   int // mentions that got a peak
	Failed   int // tokens whose series could not be fetched
	Duration time.Duration
}

// MaxSince recomputes the post-mention peak for every stored mention,
// one token at a time with TokenParallelism tokens in flight.
func (o *Orchestrator) MaxSince(ctx context.Context) (*MaxSinceResult, error) {
	start := o.now()
	res := &MaxSinceResult{RunID: uuid.NewString()}
	log := o.logger.With(zap.String("run_id", res.RunID))

	refs, err := o.mentions.ListTokenMentions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list token mentions: %w", err)
	}
	byToken := groupByToken(refs)
	tokens := make([]string, 0, len(byToken))
	for t := range byToken {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	res.Tokens = len(tokens)
	res.Mentions = len(refs)

	var (
		mu        sync.Mutex
		done      int
		sometimes = rate.Sometimes{Interval: o.progressInterval}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.tokenParallelism)
	for _, token := range tokens {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			out, err := o.maxSince.Compute(gctx, token, byToken[token])

			mu.Lock()
			done++
			finished := done
			if err == nil {
				for _, r := range out {
					if r.MaxPrice != nil {
						res.Priced++
					}
				}
			} else if !pricing.IsStorage(err) {
				res.Failed++
			}
			mu.Unlock()

			if err != nil {
				if pricing.IsStorage(err) || gctx.Err() != nil {
					return fmt.Errorf("max since %s: %w", token, err)
				}
				log.Warn("max since failed", zap.String("token", token), zap.Error(err))
			}
			sometimes.Do(func() {
				o.emit(snapshot(res.RunID, PhaseMaxSince, len(tokens), finished, o.now().Sub(start), false))
			})
			return nil
		})
	}
	err = g.Wait()

	res.Duration = o.now().Sub(start)
	o.emit(snapshot(res.RunID, PhaseMaxSince, len(tokens), done, res.Duration, true))
	if err != nil {
		observability.RecordRun(string(PhaseMaxSince), "error", res.Duration.Seconds())
		return res, err
	}

	observability.RecordRun(string(PhaseMaxSince), "ok", res.Duration.Seconds())
	log.Info("max since complete",
		zap.Int("tokens", res.Tokens),
		zap.Int("mentions", res.Mentions),
		zap.Int("priced", res.Priced),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func groupByToken(refs []domain.MentionRef) map[string][]domain.MentionRef {
	out := make(map[string][]domain.MentionRef)
	for _, r := range refs {
		out[r.TokenKey] = append(out[r.TokenKey], r)
	}
	return out
}
