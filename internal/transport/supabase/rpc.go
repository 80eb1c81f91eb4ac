// Package supabase calls matching functions through PostgREST with the caller's
// own JWT, so row-level security decides what the caller can see.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fuego-app/fuego/internal/domain"
	dommatch "github.com/fuego-app/fuego/internal/domain/match"
	"github.com/fuego-app/fuego/internal/identity"
	"github.com/fuego-app/fuego/internal/transport/upstream"
)

// Config holds the PostgREST endpoint settings.
type Config struct {
	URL            string
	AnonKey        string
	CursorFunction string
}

// MatchRPC implements the cursor repository over PostgREST.
type MatchRPC struct {
	cfg    Config
	client *upstream.Client
}

// NewMatchRPC creates the RPC backend.
func NewMatchRPC(cfg Config, client *upstream.Client) *MatchRPC {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &MatchRPC{cfg: cfg, client: client}
}

type cursorArgs struct {
	ProfileID   string   `json:"p_profile_id"`
	Limit       int      `json:"p_limit"`
	CursorScore *float64 `json:"p_cursor_score"`
	CursorID    *string  `json:"p_cursor_id"`
}

type matchRow struct {
	MatchID string  `json:"match_id"`
	Score   float64 `json:"score"`
}

// FindMatchesCursor calls the cursor function as the authenticated caller.
func (m *MatchRPC) FindMatchesCursor(
	ctx context.Context, subjectID string, limit int, cursor *dommatch.Cursor,
) ([]dommatch.Candidate, error) {
	caller, ok := identity.CallerFromContext(ctx)
	if !ok || caller.Token == "" {
		return nil, fmt.Errorf("row-level security needs the caller token: %w", domain.ErrUnauthenticated)
	}
	if err := dommatch.CheckIDs(subjectID, cursor); err != nil {
		return nil, err
	}

	args := cursorArgs{ProfileID: subjectID, Limit: limit}
	if cursor != nil {
		score, id := cursor.Score(), cursor.ID()
		args.CursorScore = &score
		args.CursorID = &id
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal rpc args: %w", err)
	}

	url := m.cfg.URL + "/rest/v1/rpc/" + m.cfg.CursorFunction
	resp, err := m.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped by upstream.Client
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("apikey", m.cfg.AnonKey)
		req.Header.Set("Authorization", "Bearer "+caller.Token)
		return req, nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	defer resp.Body.Close()

	var rows []matchRow
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rpc response: %v: %w", err, domain.ErrUpstream)
	}

	out := make([]dommatch.Candidate, len(rows))
	for i, r := range rows {
		out[i] = dommatch.NewCandidate(r.MatchID, r.Score)
	}
	return out, nil
}

// mapError translates PostgREST statuses; the body stays in the chain for logs only.
func mapError(err error) error {
	var se *upstream.StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("postgrest: %w: %w", err, domain.ErrUnauthenticated)
		case http.StatusForbidden:
			return fmt.Errorf("postgrest: %w: %w", err, domain.ErrForbidden)
		case http.StatusNotFound:
			return fmt.Errorf("postgrest: %w: %w", err, domain.ErrNotFound)
		}
	}
	return fmt.Errorf("postgrest: %w: %w", err, domain.ErrUpstream)
}
