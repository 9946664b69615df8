// Package resolve maps extracted mention candidates onto canonical token mints.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/domain"
	"mention-lab/internal/idhash"
	"mention-lab/internal/marketdata"
	"mention-lab/internal/observability"
	"mention-lab/internal/solana"
	"mention-lab/internal/storage"
)

// DefaultWeakTickerThreshold is the ticker match confidence at or below which
// a ticker needs corroboration from the same post.
const DefaultWeakTickerThreshold = 60

// Resolver resolves tickers and phrases to mints, backfills address metadata
// and applies the weak-ticker consensus rule.
type Resolver struct {
	identity marketdata.IdentitySource
	metadata storage.TokenMetadataStore
	issues   storage.UnresolvedIssueStore

	weakThreshold     int
	canonicalizePools bool

	logger *zap.Logger
	now    func() time.Time
}

// Options for creating Resolver.
type Options struct {
	// Required
	Identity marketdata.IdentitySource
	Metadata storage.TokenMetadataStore
	Issues   storage.UnresolvedIssueStore

	WeakTickerThreshold int  // 0 uses DefaultWeakTickerThreshold
	CanonicalizePools   bool // map off-curve pool addresses to their base mint

	Logger *zap.Logger
	Now    func() time.Time
}

// New creates a new Resolver.
func New(opts Options) *Resolver {
	r := &Resolver{
		identity:          opts.Identity,
		metadata:          opts.Metadata,
		issues:            opts.Issues,
		weakThreshold:     opts.WeakTickerThreshold,
		canonicalizePools: opts.CanonicalizePools,
		logger:            opts.Logger,
		now:               opts.Now,
	}
	if r.weakThreshold <= 0 {
		r.weakThreshold = DefaultWeakTickerThreshold
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Result is the outcome of one Resolve call.
type Result struct {
	Candidates  []domain.MentionCandidate // survivors in input order, TokenKey is a mint
	Unresolved  map[domain.IssueKind]int  // dropped candidates per issue kind
	Suppressed  int                       // weak tickers without corroboration
	PoolsMapped int                       // pool addresses replaced by their base mint
	Invalid     int                       // dropped by the final address check
	Skipped     int                       // dropped because a lookup failed
}

// UnresolvedTotal sums Unresolved across kinds.
func (r *Result) UnresolvedTotal() int {
	n := 0
	for _, v := range r.Unresolved {
		n += v
	}
	return n
}

// working copy of one candidate during resolution
type entry struct {
	c       domain.MentionCandidate
	value   string // normalized ticker or phrase
	weak    bool
	dropped bool
}

// Resolve returns the candidates whose TokenKey now names a valid mint.
// Only storage failures are returned as errors; upstream lookup failures drop
// the affected candidates for this run.
func (r *Resolver) Resolve(ctx context.Context, candidates []domain.MentionCandidate) (*Result, error) {
	res := &Result{Unresolved: make(map[domain.IssueKind]int)}
	if len(candidates) == 0 {
		return res, nil
	}

	entries := make([]*entry, len(candidates))
	for i, c := range candidates {
		e := &entry{c: c}
		switch c.SourceKind {
		case domain.SourceTicker:
			e.value = idhash.NormalizeTicker(valueOf(c))
		case domain.SourcePhrase:
			e.value = idhash.NormalizePhrase(valueOf(c))
		}
		entries[i] = e
	}

	if r.canonicalizePools {
		if err := r.mapPools(ctx, entries, res); err != nil {
			return nil, err
		}
	}
	if err := r.resolveText(ctx, entries, domain.SourceTicker, res); err != nil {
		return nil, err
	}
	if err := r.resolveText(ctx, entries, domain.SourcePhrase, res); err != nil {
		return nil, err
	}
	if err := r.backfillMetadata(ctx, entries, res); err != nil {
		return nil, err
	}

	r.applyConsensus(entries, res)

	for _, e := range entries {
		if e.dropped {
			continue
		}
		if !solana.IsValidAddress(e.c.TokenKey) {
			res.Invalid++
			r.logger.Debug("dropping invalid token key",
				zap.String("post_id", e.c.PostID), zap.String("token_key", e.c.TokenKey))
			continue
		}
		res.Candidates = append(res.Candidates, e.c)
	}

	r.logger.Info("resolution complete",
		zap.Int("input", len(candidates)),
		zap.Int("resolved", len(res.Candidates)),
		zap.Int("unresolved", res.UnresolvedTotal()),
		zap.Int("suppressed", res.Suppressed),
		zap.Int("pools_mapped", res.PoolsMapped),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// mapPools replaces off-curve address candidates that are known pairs with the pair's base mint.
func (r *Resolver) mapPools(ctx context.Context, entries []*entry, res *Result) error {
	var addrs []string
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.c.SourceKind != domain.SourceContractAddress {
			continue
		}
		if _, ok := seen[e.c.TokenKey]; ok {
			continue
		}
		if solana.IsValidAddress(e.c.TokenKey) && !solana.IsOnCurve(e.c.TokenKey) {
			seen[e.c.TokenKey] = struct{}{}
			addrs = append(addrs, e.c.TokenKey)
		}
	}
	if len(addrs) == 0 {
		return nil
	}

	pairs, err := r.identity.LookupPairs(ctx, addrs)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// unmapped addresses still resolve as plain mints
		r.logger.Warn("pair lookup failed", zap.Int("addresses", len(addrs)), zap.Error(err))
		return nil
	}

	for _, e := range entries {
		if e.c.SourceKind != domain.SourceContractAddress {
			continue
		}
		p, ok := pairs[e.c.TokenKey]
		if !ok || !solana.IsValidAddress(p.BaseMint) || solana.IsQuoteMint(p.BaseMint) {
			continue
		}
		r.logger.Debug("pool address mapped to base mint",
			zap.String("pool", e.c.TokenKey), zap.String("mint", p.BaseMint), zap.String("dex", p.DexID))
		e.c.TokenKey = p.BaseMint
		res.PoolsMapped++
		observability.RecordPoolAddressMapped()
	}
	return nil
}

// resolveText resolves every ticker or phrase entry with one batch lookup.
func (r *Resolver) resolveText(ctx context.Context, entries []*entry, kind domain.SourceKind, res *Result) error {
	var values []string
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.c.SourceKind != kind || e.dropped {
			continue
		}
		if _, ok := seen[e.value]; ok || e.value == "" {
			continue
		}
		seen[e.value] = struct{}{}
		values = append(values, e.value)
	}
	if len(values) == 0 {
		return nil
	}

	var (
		matches map[string]marketdata.TokenMatch
		err     error
		issue   domain.IssueKind
	)
	if kind == domain.SourceTicker {
		issue = domain.IssueTicker
		matches, err = r.identity.LookupTickers(ctx, values)
	} else {
		issue = domain.IssuePhrase
		matches, err = r.identity.LookupNames(ctx, values)
	}
	var failed map[string]error
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var lookupErr *marketdata.LookupError
		if !errors.As(err, &lookupErr) {
			r.logger.Warn("identity lookup failed, skipping candidates",
				zap.String("kind", kind.String()), zap.Int("values", len(values)), zap.Error(err))
			for _, e := range entries {
				if e.c.SourceKind == kind && !e.dropped {
					e.dropped = true
					res.Skipped++
				}
			}
			return nil
		}
		r.logger.Warn("identity lookup partially failed, skipping failed values",
			zap.String("kind", kind.String()), zap.Int("failed", len(lookupErr.Failed)), zap.Error(err))
		failed = lookupErr.Failed
	}

	for _, e := range entries {
		if e.c.SourceKind != kind || e.dropped {
			continue
		}
		if e.value == "" {
			e.dropped = true
			res.Invalid++
			continue
		}
		if _, ok := failed[e.value]; ok {
			e.dropped = true
			res.Skipped++
			continue
		}
		m, ok := matches[e.value]
		if !ok || m.Address == "" {
			if err := r.recordIssue(ctx, issue, e, res); err != nil {
				return err
			}
			continue
		}
		e.c.TokenKey = m.Address
		e.c.Confidence = clampConfidence(m.Confidence)
		if e.c.TokenDisplay == nil && m.Symbol != "" {
			display := "$" + m.Symbol
			e.c.TokenDisplay = &display
		}
		if kind == domain.SourceTicker {
			e.weak = m.Confidence <= r.weakThreshold
		}
	}
	return nil
}

// backfillMetadata makes sure every address candidate has cached metadata.
func (r *Resolver) backfillMetadata(ctx context.Context, entries []*entry, res *Result) error {
	var mints []string
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.c.SourceKind != domain.SourceContractAddress || e.dropped {
			continue
		}
		if _, ok := seen[e.c.TokenKey]; ok || !solana.IsValidAddress(e.c.TokenKey) {
			continue
		}
		seen[e.c.TokenKey] = struct{}{}
		mints = append(mints, e.c.TokenKey)
	}
	if len(mints) == 0 {
		return nil
	}

	cached, err := r.metadata.GetByMints(ctx, mints)
	if err != nil {
		return fmt.Errorf("load token metadata: %w", err)
	}
	if cached == nil {
		cached = make(map[string]*domain.TokenMetadata)
	}

	var missing []string
	for _, m := range mints {
		if _, ok := cached[m]; !ok {
			missing = append(missing, m)
		}
	}

	lookupFailed := false
	if len(missing) > 0 {
		infos, err := r.identity.LookupTokens(ctx, missing)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("token metadata lookup failed", zap.Int("mints", len(missing)), zap.Error(err))
			lookupFailed = true
		}
		fetchedAt := r.now().UnixMilli()
		for _, mint := range missing {
			info, ok := infos[mint]
			if !ok {
				continue
			}
			meta := &domain.TokenMetadata{
				Mint:      mint,
				Name:      nonEmpty(info.Name),
				Symbol:    nonEmpty(info.Symbol),
				FetchedAt: fetchedAt,
			}
			if err := r.metadata.Upsert(ctx, meta); err != nil {
				return fmt.Errorf("store token metadata %s: %w", mint, err)
			}
			cached[mint] = meta
		}
	}

	for _, e := range entries {
		if e.c.SourceKind != domain.SourceContractAddress || e.dropped {
			continue
		}
		meta, ok := cached[e.c.TokenKey]
		if !ok {
			if lookupFailed {
				e.dropped = true
				res.Skipped++
				continue
			}
			e.value = e.c.TokenKey
			if err := r.recordIssue(ctx, domain.IssueMissingMeta, e, res); err != nil {
				return err
			}
			continue
		}
		if d := meta.Display(); d != nil {
			e.c.TokenDisplay = d
		}
	}
	return nil
}

// applyConsensus drops weak tickers unless the same post names the same mint
// by address or by a resolved phrase.
func (r *Resolver) applyConsensus(entries []*entry, res *Result) {
	type postToken struct{ post, token string }
	corroborated := make(map[postToken]struct{})
	for _, e := range entries {
		if e.dropped {
			continue
		}
		if e.c.SourceKind == domain.SourceContractAddress || e.c.SourceKind == domain.SourcePhrase {
			corroborated[postToken{e.c.PostID, e.c.TokenKey}] = struct{}{}
		}
	}

	for _, e := range entries {
		if e.dropped || !e.weak {
			continue
		}
		if _, ok := corroborated[postToken{e.c.PostID, e.c.TokenKey}]; ok {
			continue
		}
		e.dropped = true
		res.Suppressed++
		observability.RecordWeakTickerSuppressed()
		r.logger.Debug("weak ticker suppressed",
			zap.String("post_id", e.c.PostID), zap.String("ticker", e.value), zap.Int("confidence", e.c.Confidence))
	}
}

func (r *Resolver) recordIssue(ctx context.Context, kind domain.IssueKind, e *entry, res *Result) error {
	e.dropped = true
	res.Unresolved[kind]++
	observability.RecordResolutionMiss(string(kind))
	if err := r.issues.Record(ctx, kind, e.value, e.c.PostID, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("record unresolved %s %q: %w", kind, e.value, err)
	}
	return nil
}

func valueOf(c domain.MentionCandidate) string {
	if c.TriggerText != nil {
		return *c.TriggerText
	}
	return c.TokenKey
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
