package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rivio/ranking-server/internal/domain"
)

// ErrInvalidLadder is returned for an unknown ladder filter.
var ErrInvalidLadder = errors.New("catalog: invalid ladder code")

// Repository reads reference data.
type Repository interface {
	// ActiveClubs lists active clubs ordered by name.
	ActiveClubs(ctx context.Context) ([]domain.Club, error)

	// ActiveLadders lists active ladders ordered by code.
	ActiveLadders(ctx context.Context) ([]domain.Ladder, error)

	// CategoriesByLadder lists a ladder's categories by sort order.
	CategoriesByLadder(ctx context.Context, ladderCode string) ([]domain.Category, error)

	// ActivePresets lists active avatar presets by sort order.
	ActivePresets(ctx context.Context) ([]domain.AvatarPreset, error)
}

// Service serves the public reference catalog.
type Service struct {
	repo Repository
}

// NewService creates a catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Clubs lists the clubs a match can be recorded at.
func (s *Service) Clubs(ctx context.Context) ([]domain.Club, error) {
	clubs, err := s.repo.ActiveClubs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clubs: %w", err)
	}
	return clubs, nil
}

// Ladders lists the competitive ladders.
func (s *Service) Ladders(ctx context.Context) ([]domain.Ladder, error) {
	ladders, err := s.repo.ActiveLadders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ladders: %w", err)
	}
	return ladders, nil
}

// Categories lists one ladder's skill categories.
func (s *Service) Categories(ctx context.Context, ladderCode string) ([]domain.Category, error) {
	if !domain.ValidLadder(ladderCode) {
		return nil, ErrInvalidLadder
	}
	cats, err := s.repo.CategoriesByLadder(ctx, ladderCode)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// AvatarPresets lists the selectable built-in avatars.
func (s *Service) AvatarPresets(ctx context.Context) ([]domain.AvatarPreset, error) {
	presets, err := s.repo.ActivePresets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list avatar presets: %w", err)
	}
	return presets, nil
}
