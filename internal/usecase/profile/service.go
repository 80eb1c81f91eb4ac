// Package profile saves profiles together with their likes embedding.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fuego-app/fuego/internal/domain"
	domprofile "github.com/fuego-app/fuego/internal/domain/profile"
	"github.com/fuego-app/fuego/internal/identity"
	"github.com/fuego-app/fuego/internal/logger"
)

// SaveInput is the client-supplied part of a profile.
type SaveInput struct {
	ID                string // optional; generated when empty
	Name              string
	Likes             []string
	IsPublic          bool
	ConsentToMatching bool
}

// Service orchestrates profile persistence.
type Service struct {
	repo     Repository
	embedder domain.Embedder
}

// New creates a profile service. embedder may be nil, in which case Save reports ErrNotConfigured.
func New(repo Repository, embedder domain.Embedder) *Service {
	return &Service{repo: repo, embedder: embedder}
}

// Save validates the input, embeds the joined likes and stores the row.
// The owner is the authenticated caller, when there is one.
func (s *Service) Save(ctx context.Context, in SaveInput) (domprofile.Profile, error) {
	if s.embedder == nil {
		return domprofile.Profile{}, fmt.Errorf("embedding provider: %w", domain.ErrNotConfigured)
	}

	p, err := newProfile(in)
	if err != nil {
		return domprofile.Profile{}, err
	}
	if caller, ok := identity.CallerFromContext(ctx); ok {
		p.OwnerID = caller.ID
	}

	emb, err := s.embedder.Embed(ctx, p.LikesText)
	if err != nil {
		return domprofile.Profile{}, fmt.Errorf("embed likes: %w", err)
	}

	saved, err := s.repo.Insert(ctx, p, emb.Embedding)
	if err != nil {
		return domprofile.Profile{}, fmt.Errorf("insert profile: %w", err)
	}

	logger.FromContext(ctx).Debug("Profile saved",
		zap.String("profile_id", saved.ID),
		zap.Int("likes", len(in.Likes)),
		zap.Int("dimensions", len(emb.Embedding)),
	)
	return saved, nil
}

func newProfile(in SaveInput) (domprofile.Profile, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domprofile.Profile{}, fmt.Errorf("name is required: %w", domain.ErrInvalidArgument)
	}

	likes := make([]string, 0, len(in.Likes))
	for _, l := range in.Likes {
		if l = strings.TrimSpace(l); l != "" {
			likes = append(likes, l)
		}
	}
	if len(likes) == 0 {
		return domprofile.Profile{}, fmt.Errorf("likes must contain at least one entry: %w", domain.ErrInvalidArgument)
	}

	id := uuid.New()
	if in.ID != "" {
		parsed, err := uuid.Parse(in.ID)
		if err != nil {
			return domprofile.Profile{}, fmt.Errorf("id must be a UUID: %w", domain.ErrInvalidArgument)
		}
		id = parsed
	}

	return domprofile.Profile{
		ID:                id.String(),
		Name:              name,
		LikesText:         domprofile.JoinLikes(likes),
		IsPublic:          in.IsPublic,
		ConsentToMatching: in.ConsentToMatching,
	}, nil
}
