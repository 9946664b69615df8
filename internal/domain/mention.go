package domain

// MentionCandidate is a detected token reference inside one post.
// Produced by extraction, rewritten by resolution and assembly, never stored directly.
type MentionCandidate struct {
	PostID       string     // owning post
	TokenKey     string     // canonical address once resolved, raw ticker/phrase before
	TokenDisplay *string    // human-readable label, e.g. $FOO (nullable)
	Confidence   int        // 0..100
	SourceKind   SourceKind // contract_address | ticker | phrase
	TriggerKey   string     // deterministic identity, unique with PostID
	TriggerText  *string    // normalized text behind TriggerKey (nullable)
}

// Key returns the (post, trigger) identity of the candidate.
func (c MentionCandidate) Key() MentionKey {
	return MentionKey{PostID: c.PostID, TriggerKey: c.TriggerKey}
}

// MentionKey is the unique identity of a persisted mention.
type MentionKey struct {
	PostID     string
	TriggerKey string
}

// Mention is a persisted token mention.
// Corresponds to mentions table in PostgreSQL.
type Mention struct {
	PostID               string     // part of unique key
	TriggerKey           string     // part of unique key
	TokenKey             string     // canonical contract address
	TokenDisplay         *string    // display label (nullable)
	Confidence           int        // 0..100
	SourceKind           SourceKind // how the token was named
	TriggerText          *string    // normalized trigger text (nullable)
	PriceAtMention       *float64   // USD price at post time (nullable, write-once)
	PricePool            *string    // pool the price came from (nullable)
	MaxPriceSinceMention *float64   // peak high since post time (nullable)
	MaxPriceAt           *int64     // unix seconds of the peak candle (nullable)
	CreatedAt            int64      // record creation timestamp (ms)
	UpdatedAt            int64      // last modification timestamp (ms)
}

// FromCandidate builds a Mention row from a resolved candidate.
func FromCandidate(c MentionCandidate) *Mention {
	return &Mention{
		PostID:       c.PostID,
		TriggerKey:   c.TriggerKey,
		TokenKey:     c.TokenKey,
		TokenDisplay: c.TokenDisplay,
		Confidence:   c.Confidence,
		SourceKind:   c.SourceKind,
		TriggerText:  c.TriggerText,
	}
}

// MentionRef points at all mention rows of one token inside one post.
// MentionedAt is the post time in unix seconds.
type MentionRef struct {
	PostID      string
	TokenKey    string
	MentionedAt int64
}
