package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rivio/ranking-server/internal/service/ranking"
)

// RankingRepo implements ranking.Repository against PostgreSQL.
type RankingRepo struct{ db *sql.DB }

// NewRankingRepo creates a Postgres-backed ranking repository.
func NewRankingRepo(db *sql.DB) *RankingRepo { return &RankingRepo{db: db} }

func (r *RankingRepo) Leaderboard(ctx context.Context, q ranking.Query, limit int) ([]ranking.Row, error) {
	sqlq := `
		SELECT uls.user_id, up.alias, uls.rating, uls.verified_matches, uls.is_provisional
		FROM user_ladder_states uls
		JOIN user_profiles up ON up.user_id = uls.user_id AND up.is_public
		JOIN users u ON u.id = uls.user_id AND u.status = 'active'
		WHERE uls.ladder_code = $1 AND uls.category_id = $2`
	args := []interface{}{q.LadderCode, q.CategoryID}
	if q.Country != "" {
		args = append(args, q.Country)
		sqlq += fmt.Sprintf(` AND up.country = $%d`, len(args))
	}
	if q.City != "" {
		args = append(args, q.City)
		sqlq += fmt.Sprintf(` AND lower(up.city) = lower($%d)`, len(args))
	}
	args = append(args, limit)
	sqlq += fmt.Sprintf(`
		ORDER BY uls.rating DESC, uls.verified_matches DESC, up.alias
		LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []ranking.Row
	for rows.Next() {
		var row ranking.Row
		if err := rows.Scan(&row.UserID, &row.Alias, &row.Rating, &row.VerifiedMatches, &row.IsProvisional); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
