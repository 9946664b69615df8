package domain

// TokenMetadata holds display metadata for a token mint.
// Corresponds to token_metadata table in PostgreSQL.
type TokenMetadata struct {
	Mint      string  // PRIMARY KEY, token mint address
	Name      *string // token name (nullable)
	Symbol    *string // token symbol (nullable)
	FetchedAt int64   // when metadata was fetched (ms)
	CreatedAt int64   // record creation timestamp (ms)
}

// Display returns "$SYMBOL" when a symbol is known.
func (m *TokenMetadata) Display() *string {
	if m == nil || m.Symbol == nil || *m.Symbol == "" {
		return nil
	}
	s := "$" + *m.Symbol
	return &s
}
