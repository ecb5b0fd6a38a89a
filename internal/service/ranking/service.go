package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rivio/ranking-server/internal/domain"
)

// Row is one leaderboard entry.
type Row struct {
	UserID          string `json:"user_id"`
	Alias           string `json:"alias"`
	Rating          int    `json:"rating"`
	VerifiedMatches int    `json:"verified_matches"`
	IsProvisional   bool   `json:"is_provisional"`
}

// Leaderboard is the response envelope.
type Leaderboard struct {
	LadderCode string `json:"ladder_code"`
	CategoryID string `json:"category_id"`
	Rows       []Row  `json:"rows"`
}

// Query scopes a leaderboard request. Country and City are optional but
// City requires Country.
type Query struct {
	LadderCode string
	CategoryID string
	Country    string
	City       string
}

// Repository defines the data access contract for rankings.
type Repository interface {
	// Leaderboard lists public ladder states ordered by rating then
	// verified matches, capped at the given limit.
	Leaderboard(ctx context.Context, q Query, limit int) ([]Row, error)
}

// Service serves leaderboards with an optional cache in front.
type Service struct {
	repo     Repository
	cache    *redis.Client // nil disables caching
	cacheTTL time.Duration
}

const leaderboardLimit = 200

// NewService creates a ranking service. cache may be nil.
func NewService(repo Repository, cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

// Leaderboard validates the scope and returns up to 200 rows.
func (s *Service) Leaderboard(ctx context.Context, q Query) (*Leaderboard, error) {
	q.LadderCode = strings.ToUpper(strings.TrimSpace(q.LadderCode))
	if !domain.ValidLadder(q.LadderCode) {
		return nil, ErrInvalidLadder
	}
	q.Country = strings.ToUpper(strings.TrimSpace(q.Country))
	q.City = strings.TrimSpace(q.City)
	if q.Country != "" && len(q.Country) != 2 {
		return nil, ErrInvalidCountry
	}
	if q.City != "" && q.Country == "" {
		return nil, ErrCityNeedsCountry
	}

	key := s.cacheKey(q)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var lb Leaderboard
			if json.Unmarshal(raw, &lb) == nil {
				return &lb, nil
			}
		}
	}

	rows, err := s.repo.Leaderboard(ctx, q, leaderboardLimit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Row{}
	}
	lb := &Leaderboard{LadderCode: q.LadderCode, CategoryID: q.CategoryID, Rows: rows}

	if s.cache != nil {
		if raw, err := json.Marshal(lb); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
				log.Printf("[ranking.Service] cache set failed: %v", err)
			}
		}
	}
	return lb, nil
}

func (s *Service) cacheKey(q Query) string {
	return fmt.Sprintf("rankings:%s:%s:%s:%s", q.LadderCode, q.CategoryID, q.Country, strings.ToLower(q.City))
}
