package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/fuego-app/fuego/internal/domain"
	dommatch "github.com/fuego-app/fuego/internal/domain/match"
)

// --- Mocks ---

// memRepo ranks a fixed candidate set the way find_matches_cursor does.
type memRepo struct {
	candidates []dommatch.Candidate
	calls      int
	lastLimit  int
	err        error
}

func newMemRepo(cs ...dommatch.Candidate) *memRepo {
	sorted := append([]dommatch.Candidate(nil), cs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	return &memRepo{candidates: sorted}
}

func (m *memRepo) FindMatchesCursor(
	_ context.Context, _ string, limit int, cursor *dommatch.Cursor,
) ([]dommatch.Candidate, error) {
	m.calls++
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	var out []dommatch.Candidate
	for _, c := range m.candidates {
		if cursor != nil && !c.After(*cursor) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) FindMatchesOffset(_ context.Context, _ string, limit, offset int) ([]dommatch.Candidate, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if offset >= len(m.candidates) {
		return nil, nil
	}
	end := min(offset+limit, len(m.candidates))
	return m.candidates[offset:end], nil
}

type mockGuard struct {
	err   error
	calls int
}

func (m *mockGuard) Check(_ context.Context, _, _ string) error {
	m.calls++
	return m.err
}

func cursorAt(score float64, id string) *dommatch.Cursor {
	c := dommatch.EncodeCursor(dommatch.NewCandidate(id, score))
	return &c
}

func ids(cs []dommatch.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.MatchID()
	}
	return out
}

// --- Tests ---

func TestQuery_PagesThroughFiveCandidates(t *testing.T) {
	repo := newMemRepo(
		dommatch.NewCandidate("a", 0.9),
		dommatch.NewCandidate("b", 0.8),
		dommatch.NewCandidate("c", 0.8),
		dommatch.NewCandidate("d", 0.5),
		dommatch.NewCandidate("e", 0.1),
	)
	svc := New(repo, Options{})
	ctx := context.Background()

	p1, err := svc.Query(ctx, "subject", 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fmt.Sprint(ids(p1.Matches())); got != "[a b]" {
		t.Fatalf("page 1: expected [a b], got %s", got)
	}
	next, ok := p1.NextCursor()
	if !ok || next.Score() != 0.8 || next.ID() != "b" {
		t.Fatalf("page 1: unexpected cursor %+v ok=%v", next, ok)
	}

	p2, err := svc.Query(ctx, "subject", 2, &next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fmt.Sprint(ids(p2.Matches())); got != "[c d]" {
		t.Fatalf("page 2: expected [c d], got %s", got)
	}
	next, ok = p2.NextCursor()
	if !ok {
		t.Fatal("page 2: expected a next cursor on a full page")
	}

	p3, err := svc.Query(ctx, "subject", 2, &next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fmt.Sprint(ids(p3.Matches())); got != "[e]" {
		t.Fatalf("page 3: expected [e], got %s", got)
	}
	if _, ok := p3.NextCursor(); ok {
		t.Error("page 3: expected no next cursor on a short page")
	}
}

func TestQuery_FullFinalPageAdvertisesEmptyPage(t *testing.T) {
	repo := newMemRepo(dommatch.NewCandidate("a", 0.9), dommatch.NewCandidate("b", 0.8))
	svc := New(repo, Options{})

	p1, _ := svc.Query(context.Background(), "s", 2, nil)
	next, ok := p1.NextCursor()
	if !ok {
		t.Fatal("expected next cursor for a full page")
	}
	p2, err := svc.Query(context.Background(), "s", 2, &next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p2.Matches()) != 0 {
		t.Errorf("expected empty page, got %v", ids(p2.Matches()))
	}
	if _, ok := p2.NextCursor(); ok {
		t.Error("expected no cursor after the empty page")
	}
}

func TestQuery_ProbeNextPage(t *testing.T) {
	repo := newMemRepo(dommatch.NewCandidate("a", 0.9), dommatch.NewCandidate("b", 0.8), dommatch.NewCandidate("c", 0.7))
	svc := New(repo, Options{ProbeNextPage: true})

	p1, err := svc.Query(context.Background(), "s", 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastLimit != 3 {
		t.Errorf("expected limit+1 fetch, got %d", repo.lastLimit)
	}
	if len(p1.Matches()) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(p1.Matches()))
	}
	next, ok := p1.NextCursor()
	if !ok || next.ID() != "b" {
		t.Fatalf("expected cursor at b, got %+v ok=%v", next, ok)
	}

	p2, _ := svc.Query(context.Background(), "s", 1, &next)
	if _, ok := p2.NextCursor(); ok {
		t.Error("expected no cursor when the probe row is absent")
	}
}

func TestQuery_TruncatesOverlongResult(t *testing.T) {
	repo := &overlongRepo{}
	svc := New(repo, Options{})

	p, err := svc.Query(context.Background(), "s", 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Matches()) != 2 {
		t.Errorf("expected 2 matches, got %d", len(p.Matches()))
	}
}

type overlongRepo struct{}

func (overlongRepo) FindMatchesCursor(context.Context, string, int, *dommatch.Cursor) ([]dommatch.Candidate, error) {
	return []dommatch.Candidate{
		dommatch.NewCandidate("a", 3), dommatch.NewCandidate("b", 2), dommatch.NewCandidate("c", 1),
	}, nil
}

func TestQuery_ValidationBeforeRepository(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		limit   int
		cursor  *dommatch.Cursor
		want    error
	}{
		{"empty subject", "", 10, nil, domain.ErrInvalidArgument},
		{"zero limit", "s", 0, nil, domain.ErrInvalidArgument},
		{"negative limit", "s", -1, nil, domain.ErrInvalidArgument},
		{"limit above max", "s", 101, nil, domain.ErrInvalidArgument},
		{"cursor without id", "s", 10, cursorAt(0.5, ""), dommatch.ErrInvalidCursor},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemRepo()
			_, err := New(repo, Options{}).Query(context.Background(), tc.subject, tc.limit, tc.cursor)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if repo.calls != 0 {
				t.Errorf("expected no repository call, got %d", repo.calls)
			}
		})
	}
}

func TestQuery_RepositoryError(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("relation does not exist")

	_, err := New(repo, Options{}).Query(context.Background(), "s", 10, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestQuery_EmptyResultIsEmptyArray(t *testing.T) {
	p, err := New(newMemRepo(), Options{}).Query(context.Background(), "s", 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Matches() == nil {
		t.Error("expected non-nil empty matches")
	}
}

// Paging from the top through successive cursors visits every candidate
// exactly once in non-increasing score order, ties included.
func TestQuery_PagingVisitsEachCandidateOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := rng.Intn(40)
		cs := make([]dommatch.Candidate, n)
		for i := range cs {
			// Coarse scores force frequent ties.
			score := float64(rng.Intn(5)) / 4
			cs[i] = dommatch.NewCandidate(fmt.Sprintf("id-%03d", i), score)
		}
		limit := 1 + rng.Intn(7)
		probe := rng.Intn(2) == 0

		svc := New(newMemRepo(cs...), Options{ProbeNextPage: probe})

		seen := map[string]bool{}
		var order []dommatch.Candidate
		var cursor *dommatch.Cursor
		for pages := 0; ; pages++ {
			if pages > n+2 {
				t.Fatalf("round %d: paging did not terminate", round)
			}
			p, err := svc.Query(context.Background(), "s", limit, cursor)
			if err != nil {
				t.Fatalf("round %d: unexpected error: %v", round, err)
			}
			for _, c := range p.Matches() {
				if seen[c.MatchID()] {
					t.Fatalf("round %d: %s returned twice", round, c.MatchID())
				}
				seen[c.MatchID()] = true
				order = append(order, c)
			}
			next, ok := p.NextCursor()
			if !ok {
				break
			}
			cursor = &next
		}

		if len(seen) != n {
			t.Fatalf("round %d: expected %d candidates, visited %d", round, n, len(seen))
		}
		for i := 1; i < len(order); i++ {
			if order[i].Score() > order[i-1].Score() {
				t.Fatalf("round %d: score increased at %d", round, i)
			}
		}
	}
}

func TestQueryOffset(t *testing.T) {
	repo := newMemRepo(dommatch.NewCandidate("a", 0.9), dommatch.NewCandidate("b", 0.8), dommatch.NewCandidate("c", 0.7))
	svc := New(repo, Options{}).WithOffsets(repo)

	got, err := svc.QueryOffset(context.Background(), "s", 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[b c]" {
		t.Errorf("expected [b c], got %v", ids(got))
	}

	got, err = svc.QueryOffset(context.Background(), "s", 2, 10)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice past the end, got %v err=%v", got, err)
	}

	if _, err := svc.QueryOffset(context.Background(), "s", 2, -1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for negative offset, got %v", err)
	}
}

func TestQueryOffset_NotConfigured(t *testing.T) {
	_, err := New(newMemRepo(), Options{}).QueryOffset(context.Background(), "s", 2, 0)
	if !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGuarded_GuardRunsFirst(t *testing.T) {
	repo := newMemRepo(dommatch.NewCandidate("a", 0.9))
	guard := &mockGuard{err: fmt.Errorf("denied: %w", domain.ErrForbidden)}
	g := NewGuarded(guard, New(repo, Options{}))

	_, err := g.Query(context.Background(), "u1", "p1", 10, nil)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if repo.calls != 0 {
		t.Error("gateway must not run after a denial")
	}
}

func TestGuarded_Allowed(t *testing.T) {
	repo := newMemRepo(dommatch.NewCandidate("a", 0.9))
	guard := &mockGuard{}
	g := NewGuarded(guard, New(repo, Options{}))

	p, err := g.Query(context.Background(), "u1", "p1", 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if guard.calls != 1 || len(p.Matches()) != 1 {
		t.Errorf("expected one guard call and one match, got %d / %d", guard.calls, len(p.Matches()))
	}
}

func TestGuarded_InvalidArgumentSkipsGuard(t *testing.T) {
	guard := &mockGuard{}
	g := NewGuarded(guard, New(newMemRepo(), Options{}))

	if _, err := g.Query(context.Background(), "u1", "", 10, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if guard.calls != 0 {
		t.Error("guard must not run for malformed arguments")
	}
}
