// Package profile holds the stored profile and its authorization view.
package profile

import (
	"strings"
	"time"
)

// LikesSeparator joins likes into the embedded likes_text column.
const LikesSeparator = "\n"

// Profile is a stored profile row, without its embedding.
type Profile struct {
	ID                string
	OwnerID           string
	Name              string
	LikesText         string
	IsPublic          bool
	ConsentToMatching bool
	CreatedAt         time.Time
}

// JoinLikes renders likes in the form that gets embedded and stored.
func JoinLikes(likes []string) string {
	return strings.Join(likes, LikesSeparator)
}

// Authorization is the ownership and visibility view consulted before matching.
// It is read fresh per request.
type Authorization struct {
	ProfileID         string
	OwnerID           string
	IsPublic          bool
	ConsentToMatching bool
}
