// Package match pages ranked similarity results by keyset cursor.
package match

import (
	"context"
	"fmt"

	"github.com/fuego-app/fuego/internal/domain"
	dommatch "github.com/fuego-app/fuego/internal/domain/match"
)

// DefaultMaxLimit caps a single page.
const DefaultMaxLimit = 100

// Options tune paging.
type Options struct {
	MaxLimit int
	// ProbeNextPage fetches one extra row so a next cursor is only emitted
	// when another page exists. Off means a full page always advertises more.
	ProbeNextPage bool
}

// Service is the similarity query gateway.
type Service struct {
	repo    CursorRepository
	offsets OffsetRepository
	opts    Options
}

// New creates a gateway over a cursor repository.
func New(repo CursorRepository, opts Options) *Service {
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultMaxLimit
	}
	return &Service{repo: repo, opts: opts}
}

// WithOffsets enables QueryOffset.
func (s *Service) WithOffsets(r OffsetRepository) *Service {
	s.offsets = r
	return s
}

// Query returns up to limit candidates ranked after cursor (nil starts at the top).
// Arguments are validated before any call to the repository.
func (s *Service) Query(ctx context.Context, subjectID string, limit int, cursor *dommatch.Cursor) (dommatch.Page, error) {
	if err := s.validate(subjectID, limit); err != nil {
		return dommatch.Page{}, err
	}
	if cursor != nil {
		if err := cursor.Validate(); err != nil {
			return dommatch.Page{}, err //nolint:wrapcheck // already wraps ErrInvalidCursor
		}
	}

	fetch := limit
	if s.opts.ProbeNextPage {
		fetch = limit + 1
	}

	rows, err := s.repo.FindMatchesCursor(ctx, subjectID, fetch, cursor)
	if err != nil {
		return dommatch.Page{}, fmt.Errorf("find matches: %w", err)
	}

	more := false
	if s.opts.ProbeNextPage {
		more = len(rows) > limit
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	if !s.opts.ProbeNextPage {
		more = dommatch.IsPageFull(len(rows), limit)
	}

	var next *dommatch.Cursor
	if more && len(rows) > 0 {
		c := dommatch.EncodeCursor(rows[len(rows)-1])
		next = &c
	}
	return dommatch.NewPage(rows, next), nil
}

// QueryOffset returns up to limit candidates after skipping offset ranked rows.
func (s *Service) QueryOffset(ctx context.Context, subjectID string, limit, offset int) ([]dommatch.Candidate, error) {
	if s.offsets == nil {
		return nil, fmt.Errorf("offset pagination: %w", domain.ErrNotConfigured)
	}
	if err := s.validate(subjectID, limit); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0: %w", domain.ErrInvalidArgument)
	}

	rows, err := s.offsets.FindMatchesOffset(ctx, subjectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("find matches: %w", err)
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []dommatch.Candidate{}
	}
	return rows, nil
}

func (s *Service) validate(subjectID string, limit int) error {
	if subjectID == "" {
		return fmt.Errorf("profile_id is required: %w", domain.ErrInvalidArgument)
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be > 0: %w", domain.ErrInvalidArgument)
	}
	if limit > s.opts.MaxLimit {
		return fmt.Errorf("limit must be <= %d: %w", s.opts.MaxLimit, domain.ErrInvalidArgument)
	}
	return nil
}

// Guarded runs the consent guard strictly before the gateway.
type Guarded struct {
	guard Guard
	svc   *Service
}

// NewGuarded wraps svc with guard.
func NewGuarded(guard Guard, svc *Service) *Guarded {
	return &Guarded{guard: guard, svc: svc}
}

// Query authorizes callerID for subjectID and then pages matches.
// Malformed arguments are rejected before the guard touches the store.
func (g *Guarded) Query(
	ctx context.Context, callerID, subjectID string, limit int, cursor *dommatch.Cursor,
) (dommatch.Page, error) {
	if err := g.svc.validate(subjectID, limit); err != nil {
		return dommatch.Page{}, err
	}
	if err := g.guard.Check(ctx, callerID, subjectID); err != nil {
		return dommatch.Page{}, fmt.Errorf("authorize: %w", err)
	}
	return g.svc.Query(ctx, subjectID, limit, cursor)
}
