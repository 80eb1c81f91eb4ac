package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fuego-app/fuego/internal/domain"
	dommatch "github.com/fuego-app/fuego/internal/domain/match"
	"github.com/fuego-app/fuego/internal/identity"
	"github.com/fuego-app/fuego/internal/transport/upstream"
)

const (
	subjectID = "0b2f6a3e-1c1d-4a55-9c4f-3d2e1f0a9b8c"
	cursorID  = "7d1c2b3a-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
)

func newTestRPC(url string) *MatchRPC {
	return NewMatchRPC(Config{URL: url + "/", AnonKey: "anon", CursorFunction: "find_matches_cursor"},
		upstream.New(upstream.Config{Name: "supabase-test", InitialBackoff: time.Millisecond}, zap.NewNop()))
}

func callerCtx() context.Context {
	return identity.WithCaller(context.Background(), identity.Caller{ID: "u1", Token: "user-jwt"})
}

func TestFindMatchesCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/find_matches_cursor" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer user-jwt" {
			t.Errorf("unexpected headers: %v", r.Header)
		}
		var args map[string]any
		_ = json.NewDecoder(r.Body).Decode(&args)
		if args["p_profile_id"] != subjectID || args["p_limit"] != float64(2) {
			t.Errorf("unexpected args: %v", args)
		}
		if args["p_cursor_score"] != 0.5 || args["p_cursor_id"] != cursorID {
			t.Errorf("unexpected cursor args: %v", args)
		}
		_, _ = w.Write([]byte(`[{"match_id":"m1","score":0.4},{"match_id":"m2","score":0.3}]`))
	}))
	defer srv.Close()

	cur := dommatch.EncodeCursor(dommatch.NewCandidate(cursorID, 0.5))
	got, err := newTestRPC(srv.URL).FindMatchesCursor(callerCtx(), subjectID, 2, &cur)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].MatchID() != "m1" || got[1].Score() != 0.3 {
		t.Errorf("unexpected candidates: %+v", got)
	}
}

func TestFindMatchesCursor_NullCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var args map[string]any
		_ = json.NewDecoder(r.Body).Decode(&args)
		if v, ok := args["p_cursor_score"]; !ok || v != nil {
			t.Errorf("expected explicit null cursor score, got %v", args)
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	got, err := newTestRPC(srv.URL).FindMatchesCursor(callerCtx(), subjectID, 10, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v err=%v", got, err)
	}
}

func TestFindMatchesCursor_RequiresCallerToken(t *testing.T) {
	_, err := newTestRPC("http://unused").FindMatchesCursor(context.Background(), "p1", 10, nil)
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestFindMatchesCursor_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrUnauthenticated},
		{http.StatusForbidden, domain.ErrForbidden},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusBadRequest, domain.ErrUpstream},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"message":"JWT expired"}`))
		}))

		_, err := newTestRPC(srv.URL).FindMatchesCursor(callerCtx(), subjectID, 10, nil)
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		srv.Close()
	}
}

func TestFindMatchesCursor_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	_, err := newTestRPC(srv.URL).FindMatchesCursor(callerCtx(), subjectID, 10, nil)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestFindMatchesCursor_RejectsNonUUIDBeforeCalling(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newTestRPC(srv.URL).FindMatchesCursor(callerCtx(), "p-own", 10, nil)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if called {
		t.Error("PostgREST must not be called for a malformed id")
	}
}
