package match

import dommatch "github.com/fuego-app/fuego/internal/domain/match"

type matchRow struct {
	MatchID string  `db:"match_id"`
	Score   float64 `db:"score"`
}

func (r matchRow) toDomain() dommatch.Candidate {
	return dommatch.NewCandidate(r.MatchID, r.Score)
}
