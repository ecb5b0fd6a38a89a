package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rivio/ranking-server/internal/domain"
)

// CatalogRepo implements catalog.Repository against PostgreSQL.
type CatalogRepo struct{ db *sql.DB }

// NewCatalogRepo creates a Postgres-backed catalog repository.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

func (r *CatalogRepo) ActiveClubs(ctx context.Context) ([]domain.Club, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, city, is_active FROM clubs WHERE is_active ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list clubs: %w", err)
	}
	defer rows.Close()

	var out []domain.Club
	for rows.Next() {
		var c domain.Club
		if err := rows.Scan(&c.ID, &c.Name, &c.City, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan club: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) ActiveLadders(ctx context.Context) ([]domain.Ladder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, name, is_active FROM ladders WHERE is_active ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("list ladders: %w", err)
	}
	defer rows.Close()

	var out []domain.Ladder
	for rows.Next() {
		var l domain.Ladder
		if err := rows.Scan(&l.Code, &l.Name, &l.IsActive); err != nil {
			return nil, fmt.Errorf("scan ladder: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) CategoriesByLadder(ctx context.Context, ladderCode string) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ladder_code, code, name, sort_order
		FROM categories
		WHERE ladder_code = $1
		ORDER BY sort_order
	`, ladderCode)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.LadderCode, &c.Code, &c.Name, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) ActivePresets(ctx context.Context) ([]domain.AvatarPreset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, display_name, image_url, is_active, sort_order
		FROM avatar_presets
		WHERE is_active
		ORDER BY sort_order
	`)
	if err != nil {
		return nil, fmt.Errorf("list avatar presets: %w", err)
	}
	defer rows.Close()

	var out []domain.AvatarPreset
	for rows.Next() {
		var p domain.AvatarPreset
		if err := rows.Scan(&p.Key, &p.DisplayName, &p.ImageURL, &p.IsActive, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("scan avatar preset: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
