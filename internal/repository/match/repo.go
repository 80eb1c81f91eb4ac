// Package match calls the ranked-similarity SQL functions.
package match

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/fuego-app/fuego/internal/db"
	dommatch "github.com/fuego-app/fuego/internal/domain/match"
	"github.com/fuego-app/fuego/internal/metrics"
)

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// querier is the consumer interface over *sqlx.DB.
type querier interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Repo invokes one cursor function and, optionally, the offset function.
type Repo struct {
	q              querier
	cursorFunction string
	offsetFunction string
}

// New creates a repo bound to a cursor function such as find_matches_cursor.
// Function names are interpolated into SQL and must be plain identifiers.
func New(q querier, cursorFunction string) (*Repo, error) {
	if !identifier.MatchString(cursorFunction) {
		return nil, fmt.Errorf("invalid function name %q", cursorFunction)
	}
	return &Repo{q: q, cursorFunction: cursorFunction}, nil
}

// WithOffsetFunction enables FindMatchesOffset through a function such as find_matches.
func (r *Repo) WithOffsetFunction(name string) (*Repo, error) {
	if !identifier.MatchString(name) {
		return nil, fmt.Errorf("invalid function name %q", name)
	}
	r.offsetFunction = name
	return r, nil
}

// FindMatchesCursor returns up to limit rows strictly after cursor (nil starts at the top).
func (r *Repo) FindMatchesCursor(
	ctx context.Context, subjectID string, limit int, cursor *dommatch.Cursor,
) ([]dommatch.Candidate, error) {
	if err := dommatch.CheckIDs(subjectID, cursor); err != nil {
		return nil, err
	}

	var cursorScore, cursorID any
	if cursor != nil {
		cursorScore = cursor.Score()
		cursorID = cursor.ID()
	}

	query := fmt.Sprintf(
		"SELECT match_id, score FROM %s($1::uuid, $2::int, $3::float8, $4::uuid)", r.cursorFunction)

	return r.run(ctx, r.cursorFunction, query, subjectID, limit, cursorScore, cursorID)
}

// FindMatchesOffset returns up to limit rows after skipping offset rows.
func (r *Repo) FindMatchesOffset(
	ctx context.Context, subjectID string, limit, offset int,
) ([]dommatch.Candidate, error) {
	if r.offsetFunction == "" {
		return nil, fmt.Errorf("offset function not configured")
	}
	if err := dommatch.CheckIDs(subjectID, nil); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT match_id, score FROM %s($1::uuid, $2::int, $3::int)", r.offsetFunction)

	return r.run(ctx, r.offsetFunction, query, subjectID, limit, offset)
}

func (r *Repo) run(ctx context.Context, function, query string, args ...any) ([]dommatch.Candidate, error) {
	start := time.Now()

	var rows []matchRow
	err := r.q.SelectContext(ctx, &rows, query, args...)

	metrics.MatchQueryDuration.WithLabelValues(function).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MatchQueriesTotal.WithLabelValues(function, "error").Inc()
		return nil, &db.Error{Op: db.OpSelect, Err: fmt.Errorf("%s: %w", function, err)}
	}
	metrics.MatchQueriesTotal.WithLabelValues(function, "success").Inc()

	out := make([]dommatch.Candidate, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
