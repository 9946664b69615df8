package domain

// SourceKind is how a mention was expressed in the post text.
type SourceKind string

const (
	SourceContractAddress SourceKind = "contract_address"
	SourceTicker          SourceKind = "ticker"
	SourcePhrase          SourceKind = "phrase"
)

// String returns the string representation of SourceKind.
func (k SourceKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k SourceKind) IsValid() bool {
	return k == SourceContractAddress || k == SourceTicker || k == SourcePhrase
}

// Precedence ranks kinds when several candidates in one post point at the same token.
// Higher wins.
func (k SourceKind) Precedence() int {
	switch k {
	case SourceContractAddress:
		return 3
	case SourcePhrase:
		return 2
	case SourceTicker:
		return 1
	default:
		return 0
	}
}
