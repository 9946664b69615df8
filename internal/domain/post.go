package domain

// Post is a social-media post handed to the scanner.
// Corresponds to posts table in PostgreSQL.
type Post struct {
	PostID       string // PRIMARY KEY, upstream post id
	AuthorHandle string // author handle without @
	Text         string // raw post text
	CreatedAt    int64  // post time, Unix milliseconds
	IngestedAt   int64  // record creation timestamp (ms)
}

// CreatedAtSeconds returns the post time in unix seconds.
func (p *Post) CreatedAtSeconds() int64 {
	return p.CreatedAt / 1000
}
