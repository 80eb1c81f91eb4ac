package ops

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	dommatch "github.com/fuego-app/fuego/internal/domain/match"
	"github.com/fuego-app/fuego/internal/identity"
)

// DefaultSetupFunctions are the matching functions the API calls.
var DefaultSetupFunctions = []string{"find_matches", "find_matches_cursor"}

// SetupReport is the outcome of VerifySetup.
type SetupReport struct {
	PGVector         bool
	EmbeddingColumn  bool
	Functions        []string
	MissingFunctions []string
}

// OK reports whether the extension, the column and every function exist.
func (r SetupReport) OK() bool {
	return r.PGVector && r.EmbeddingColumn && len(r.MissingFunctions) == 0
}

const (
	extensionQuery       = `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`
	embeddingColumnQuery = `SELECT EXISTS (SELECT 1 FROM information_schema.columns
WHERE table_name = 'profiles' AND column_name = 'embedding')`
	functionsQuery = `SELECT DISTINCT proname FROM pg_proc WHERE proname = ANY($1) ORDER BY proname`
)

// VerifySetup checks that pgvector, profiles.embedding and the matching functions are installed.
func VerifySetup(ctx context.Context, q sqlx.QueryerContext, functions []string) (SetupReport, error) {
	var report SetupReport

	if err := sqlx.GetContext(ctx, q, &report.PGVector, extensionQuery); err != nil {
		return SetupReport{}, errors.Wrap(err, "check pgvector extension")
	}
	if err := sqlx.GetContext(ctx, q, &report.EmbeddingColumn, embeddingColumnQuery); err != nil {
		return SetupReport{}, errors.Wrap(err, "check profiles.embedding column")
	}

	if len(functions) > 0 {
		if err := sqlx.SelectContext(ctx, q, &report.Functions, functionsQuery, pq.Array(functions)); err != nil {
			return SetupReport{}, errors.Wrapf(err, "list functions %v", functions)
		}
	}
	for _, fn := range functions {
		if !slices.Contains(report.Functions, fn) {
			report.MissingFunctions = append(report.MissingFunctions, fn)
		}
	}

	return report, nil
}

// OffsetFinder runs the offset matching function.
type OffsetFinder interface {
	FindMatchesOffset(ctx context.Context, subjectID string, limit, offset int) ([]dommatch.Candidate, error)
}

// CursorFinder runs the cursor matching function.
type CursorFinder interface {
	FindMatchesCursor(ctx context.Context, subjectID string, limit int, cursor *dommatch.Cursor) ([]dommatch.Candidate, error)
}

// SampleMatches runs the offset function once for profileID with limit 1.
func SampleMatches(ctx context.Context, f OffsetFinder, profileID string) ([]dommatch.Candidate, error) {
	rows, err := f.FindMatchesOffset(ctx, profileID, 1, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "sample matches for %s", profileID)
	}
	return rows, nil
}

// SmokeRPC calls the cursor function as the holder of token, so row-level
// security applies exactly as it does for the API.
func SmokeRPC(ctx context.Context, f CursorFinder, token, profileID string) ([]dommatch.Candidate, error) {
	if token == "" {
		return nil, errors.New("a user JWT is required to call PostgREST")
	}
	ctx = identity.WithCaller(ctx, identity.Caller{Token: token})

	rows, err := f.FindMatchesCursor(ctx, profileID, 1, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "rpc matches for %s", profileID)
	}
	return rows, nil
}
