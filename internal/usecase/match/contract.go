package match

import (
	"context"

	dommatch "github.com/fuego-app/fuego/internal/domain/match"
)

// CursorRepository runs the ranked-similarity function with an exclusive keyset bound.
type CursorRepository interface {
	FindMatchesCursor(ctx context.Context, subjectID string, limit int, cursor *dommatch.Cursor) ([]dommatch.Candidate, error)
}

// OffsetRepository runs the offset-paginated similarity function.
type OffsetRepository interface {
	FindMatchesOffset(ctx context.Context, subjectID string, limit, offset int) ([]dommatch.Candidate, error)
}

// Guard authorizes a caller against a subject profile.
type Guard interface {
	Check(ctx context.Context, callerID, profileID string) error
}
