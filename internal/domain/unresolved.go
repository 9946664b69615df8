package domain

// IssueKind classifies why a candidate could not be resolved.
type IssueKind string

const (
	IssueTicker      IssueKind = "ticker"
	IssuePhrase      IssueKind = "phrase"
	IssueMissingMeta IssueKind = "missing_meta"
)

// UnresolvedIssue counts repeated resolution failures for one normalized value.
// Corresponds to unresolved_issues table in PostgreSQL.
type UnresolvedIssue struct {
	Kind            IssueKind // part of unique key
	NormalizedValue string    // part of unique key
	SeenCount       int       // incremented on every failure
	SamplePostID    string    // most recent post that produced it
	FirstSeenAt     int64     // ms
	LastSeenAt      int64     // ms
}
