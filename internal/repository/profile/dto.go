package profile

import (
	"database/sql"
	"time"

	domprofile "github.com/fuego-app/fuego/internal/domain/profile"
)

type profileRow struct {
	ID                string         `db:"id"`
	UserID            sql.NullString `db:"user_id"`
	Name              string         `db:"name"`
	LikesText         string         `db:"likes_text"`
	IsPublic          bool           `db:"is_public"`
	ConsentToMatching bool           `db:"consent_to_matching"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r profileRow) toDomain() domprofile.Profile {
	return domprofile.Profile{
		ID:                r.ID,
		OwnerID:           r.UserID.String,
		Name:              r.Name,
		LikesText:         r.LikesText,
		IsPublic:          r.IsPublic,
		ConsentToMatching: r.ConsentToMatching,
		CreatedAt:         r.CreatedAt,
	}
}

type authorizationRow struct {
	ID                string         `db:"id"`
	UserID            sql.NullString `db:"user_id"`
	IsPublic          bool           `db:"is_public"`
	ConsentToMatching bool           `db:"consent_to_matching"`
}

func (r authorizationRow) toDomain() domprofile.Authorization {
	return domprofile.Authorization{
		ProfileID:         r.ID,
		OwnerID:           r.UserID.String,
		IsPublic:          r.IsPublic,
		ConsentToMatching: r.ConsentToMatching,
	}
}
