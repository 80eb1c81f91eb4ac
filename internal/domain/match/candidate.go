// Package match holds the ranked-match value objects and the keyset cursor codec.
package match

// Candidate is one ranked result of a similarity query. Higher score means more similar.
type Candidate struct {
	matchID string
	score   float64
}

// NewCandidate creates a candidate.
func NewCandidate(matchID string, score float64) Candidate {
	return Candidate{matchID: matchID, score: score}
}

// MatchID returns the matched profile identifier.
func (c Candidate) MatchID() string { return c.matchID }

// Score returns the similarity score.
func (c Candidate) Score() float64 { return c.score }

// Less reports whether c ranks before o: score descending, then id ascending.
func (c Candidate) Less(o Candidate) bool {
	if c.score != o.score {
		return c.score > o.score
	}
	return c.matchID < o.matchID
}

// After reports whether c falls strictly after the cursor position in rank order.
func (c Candidate) After(cur Cursor) bool {
	if c.score != cur.score {
		return c.score < cur.score
	}
	return c.matchID > cur.id
}
