package chi

import (
	"encoding/json"
	"time"

	"github.com/fuego-app/fuego/internal/domain/chat"
	dommatch "github.com/fuego-app/fuego/internal/domain/match"
	domprofile "github.com/fuego-app/fuego/internal/domain/profile"
)

// ErrorCode is the machine-readable error code returned to clients.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeInvalidArgument  ErrorCode = "invalid_argument"
	CodeInvalidCursor    ErrorCode = "invalid_cursor"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeForbidden        ErrorCode = "forbidden"
	CodeNotFound         ErrorCode = "not_found"
	CodeMethodNotAllowed ErrorCode = "method_not_allowed"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeNotConfigured    ErrorCode = "not_configured"
	CodeUpstream         ErrorCode = "upstream_error"
	CodeInternal         ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type saveProfileRequest struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Likes             []string `json:"likes"`
	IsPublic          bool     `json:"is_public"`
	ConsentToMatching bool     `json:"consent_to_matching"`
}

type profileResponse struct {
	ID                string    `json:"id"`
	UserID            *string   `json:"user_id"`
	Name              string    `json:"name"`
	LikesText         string    `json:"likes_text"`
	IsPublic          bool      `json:"is_public"`
	ConsentToMatching bool      `json:"consent_to_matching"`
	CreatedAt         time.Time `json:"created_at"`
}

func profileToResponse(p domprofile.Profile) profileResponse {
	resp := profileResponse{
		ID:                p.ID,
		Name:              p.Name,
		LikesText:         p.LikesText,
		IsPublic:          p.IsPublic,
		ConsentToMatching: p.ConsentToMatching,
		CreatedAt:         p.CreatedAt,
	}
	if p.OwnerID != "" {
		owner := p.OwnerID
		resp.UserID = &owner
	}
	return resp
}

// matchRequest is shared by the cursor, secure and RLS routes.
// Cursor stays raw so that a malformed cursor is reported as invalid_cursor, not bad_request.
type matchRequest struct {
	ProfileID string          `json:"profile_id"`
	Limit     *int            `json:"limit"`
	Cursor    json.RawMessage `json:"cursor"`
}

type offsetRequest struct {
	ProfileID string `json:"profile_id"`
	Limit     *int   `json:"limit"`
	Offset    int    `json:"offset"`
}

type candidateResponse struct {
	MatchID string  `json:"match_id"`
	Score   float64 `json:"score"`
}

type pageResponse struct {
	Matches    []candidateResponse `json:"matches"`
	NextCursor *dommatch.Cursor    `json:"next_cursor"`
}

type offsetPageResponse struct {
	Matches []candidateResponse `json:"matches"`
}

func candidatesToResponse(cs []dommatch.Candidate) []candidateResponse {
	out := make([]candidateResponse, len(cs))
	for i, c := range cs {
		out[i] = candidateResponse{MatchID: c.MatchID(), Score: c.Score()}
	}
	return out
}

func pageToResponse(p dommatch.Page) pageResponse {
	resp := pageResponse{Matches: candidatesToResponse(p.Matches())}
	if next, ok := p.NextCursor(); ok {
		resp.NextCursor = &next
	}
	return resp
}

type explanationRequest struct {
	ProfileAName  string   `json:"profileAName"`
	ProfileALikes []string `json:"profileALikes"`
	ProfileBName  string   `json:"profileBName"`
	ProfileBLikes []string `json:"profileBLikes"`
}

type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Response string `json:"response"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
