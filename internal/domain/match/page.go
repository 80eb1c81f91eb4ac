package match

// Page is the result of one cursor query.
type Page struct {
	matches    []Candidate
	nextCursor *Cursor
}

// NewPage builds a page. next may be nil when no further page is advertised.
func NewPage(matches []Candidate, next *Cursor) Page {
	if matches == nil {
		matches = []Candidate{}
	}
	return Page{matches: matches, nextCursor: next}
}

// Matches returns the ordered candidates. Never nil.
func (p Page) Matches() []Candidate { return p.matches }

// NextCursor returns the continuation cursor and whether one is present.
func (p Page) NextCursor() (Cursor, bool) {
	if p.nextCursor == nil {
		return Cursor{}, false
	}
	return *p.nextCursor, true
}

// IsPageFull reports whether a page with n matches filled the requested limit.
func IsPageFull(n, requestedLimit int) bool {
	return n == requestedLimit
}
