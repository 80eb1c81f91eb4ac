// Package profile persists profiles and reads their authorization view.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fuego-app/fuego/internal/db"
	"github.com/fuego-app/fuego/internal/db/postgres"
	"github.com/fuego-app/fuego/internal/domain"
	domprofile "github.com/fuego-app/fuego/internal/domain/profile"
)

// querier is the consumer interface over *sqlx.DB.
type querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repo reads and writes the profiles table.
type Repo struct {
	q querier
}

// New creates a profile repository.
func New(q querier) *Repo {
	return &Repo{q: q}
}

const insertProfileSQL = `INSERT INTO profiles
	(id, user_id, name, likes_text, embedding, is_public, consent_to_matching)
VALUES ($1, $2, $3, $4, $5::vector, $6, $7)
RETURNING id, user_id, name, likes_text, is_public, consent_to_matching, created_at`

// Insert stores a profile with its likes embedding.
func (r *Repo) Insert(ctx context.Context, p domprofile.Profile, embedding []float32) (domprofile.Profile, error) {
	var row profileRow
	err := r.q.GetContext(ctx, &row, insertProfileSQL,
		p.ID, nullString(p.OwnerID), p.Name, p.LikesText, postgres.VectorLiteral(embedding), p.IsPublic, p.ConsentToMatching)
	if err != nil {
		return domprofile.Profile{}, &db.Error{Op: db.OpInsert, Err: err}
	}
	return row.toDomain(), nil
}

const selectAuthorizationSQL = `SELECT id, user_id, is_public, consent_to_matching
FROM profiles WHERE id = $1`

// GetAuthorization reads ownership and visibility. Always hits the database,
// except for ids that are not UUIDs: no such profile can exist.
func (r *Repo) GetAuthorization(ctx context.Context, profileID string) (domprofile.Authorization, error) {
	if _, err := uuid.Parse(profileID); err != nil {
		return domprofile.Authorization{}, fmt.Errorf("profile %q: %w", profileID, domain.ErrNotFound)
	}

	var row authorizationRow
	if err := r.q.GetContext(ctx, &row, selectAuthorizationSQL, profileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domprofile.Authorization{}, fmt.Errorf("profile %s: %w", profileID, domain.ErrNotFound)
		}
		return domprofile.Authorization{}, &db.Error{Op: db.OpSelect, Err: err}
	}
	return row.toDomain(), nil
}

// LinkOwner sets user_id on a profile. Returns false when no row matched.
func (r *Repo) LinkOwner(ctx context.Context, profileID, userID string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE profiles SET user_id = $1 WHERE id = $2`, userID, profileID)
	if err != nil {
		return false, &db.Error{Op: db.OpUpdate, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &db.Error{Op: db.OpUpdate, Err: err}
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
