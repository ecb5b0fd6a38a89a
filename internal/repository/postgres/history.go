package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/service/history"
)

// maskedAlias replaces a private participant's alias for outside viewers.
const maskedAlias = "[private]"

// HistoryRepo implements history.Repository against PostgreSQL.
type HistoryRepo struct{ db *sql.DB }

// NewHistoryRepo creates a Postgres-backed history repository.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

func (r *HistoryRepo) ProfileVisibility(ctx context.Context, userID string) (bool, error) {
	var isPublic bool
	err := r.db.QueryRowContext(ctx, `
		SELECT is_public FROM user_profiles WHERE user_id = $1
	`, userID).Scan(&isPublic)
	if err == sql.ErrNoRows {
		return false, history.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("profile visibility: %w", err)
	}
	return isPublic, nil
}

func (r *HistoryRepo) Timeline(ctx context.Context, q history.TimelineQuery) ([]history.TimelineItem, error) {
	sqlq := `
		SELECT m.id, m.ladder_code, m.category_id, c.code,
		       m.club_id, cl.name, cl.city,
		       m.played_at, m.created_at, m.confirmation_deadline,
		       m.confirmed_count, m.has_dispute,
		       m.status, m.rank_processed_at,
		       mp.team_no, ms.winner_team_no,
		       m.created_by, creator.alias, COALESCE(creator.is_public, false),
		       ARRAY(
		           SELECT CASE WHEN $1::bool AND NOT rp.is_public THEN '` + maskedAlias + `' ELSE rp.alias END
		           FROM match_participants rmp
		           JOIN user_profiles rp ON rp.user_id = rmp.user_id
		           WHERE rmp.match_id = m.id AND rmp.team_no <> mp.team_no
		           ORDER BY rp.alias
		       )
		FROM matches m
		JOIN match_participants mp ON mp.match_id = m.id AND mp.user_id = $2
		JOIN categories c ON c.id = m.category_id
		LEFT JOIN clubs cl ON cl.id = m.club_id
		LEFT JOIN match_scores ms ON ms.match_id = m.id
		LEFT JOIN user_profiles creator ON creator.user_id = m.created_by
		WHERE 1 = 1`
	args := []interface{}{q.MaskPrivate, q.TargetUserID}

	add := func(clause string, val interface{}) {
		args = append(args, val)
		sqlq += fmt.Sprintf(clause, len(args))
	}

	switch q.Scope {
	case history.ScopeVerified:
		sqlq += ` AND m.status = 'verified'`
	case history.ScopePending:
		sqlq += ` AND m.status = 'pending_confirm' AND m.confirmation_deadline > now()`
	}
	if q.Ladder != "" {
		add(` AND m.ladder_code = $%d`, q.Ladder)
	}
	if q.DateFrom != nil {
		add(` AND m.played_at >= $%d`, *q.DateFrom)
	}
	if q.DateTo != nil {
		add(` AND m.played_at <= $%d`, *q.DateTo)
	}
	if q.ClubID != "" {
		add(` AND m.club_id = $%d`, q.ClubID)
	}
	if q.ClubCity != "" {
		add(` AND lower(cl.city) = lower($%d)`, q.ClubCity)
	}
	if q.MatchID != "" {
		add(` AND m.id = $%d`, q.MatchID)
	}
	add(` ORDER BY m.played_at DESC, m.created_at DESC LIMIT $%d`, q.Limit)
	add(` OFFSET $%d`, q.Offset)

	rows, err := r.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var out []history.TimelineItem
	for rows.Next() {
		var (
			it              history.TimelineItem
			rankProcessedAt *time.Time
			winner          sql.NullInt64
			creatorAlias    sql.NullString
			creatorPublic   bool
			rivals          pq.StringArray
		)
		if err := rows.Scan(
			&it.MatchID, &it.LadderCode, &it.CategoryID, &it.CategoryCode,
			&it.ClubID, &it.ClubName, &it.ClubCity,
			&it.PlayedAt, &it.CreatedAt, &it.ConfirmationDeadline,
			&it.ConfirmedCount, &it.HasDispute,
			&it.Status, &rankProcessedAt,
			&it.FocusTeamNo, &winner,
			&it.CreatedBy, &creatorAlias, &creatorPublic,
			&rivals,
		); err != nil {
			return nil, fmt.Errorf("scan timeline item: %w", err)
		}

		it.RivalAliases = []string(rivals)
		if winner.Valid {
			w := int(winner.Int64)
			it.WinnerTeamNo = &w
			win := w == it.FocusTeamNo
			it.DidFocusUserWin = &win
		}
		if creatorAlias.Valid {
			alias := creatorAlias.String
			if q.MaskPrivate && !creatorPublic {
				alias = maskedAlias
			}
			it.CreatedByAlias = &alias
		}
		it.VisibilityReason = q.VisibilityReason

		eff := domain.Match{
			Status:               domain.MatchStatus(it.Status),
			ConfirmationDeadline: it.ConfirmationDeadline,
		}.EffectiveStatus(now)
		it.Status = string(eff)
		it.StatusReason = statusReason(eff, it.HasDispute)
		it.RankingImpact = eff == domain.MatchVerified && rankProcessedAt != nil
		it.RankingImpactReason = rankingImpactReason(eff, rankProcessedAt != nil)

		out = append(out, it)
	}
	return out, rows.Err()
}

func statusReason(s domain.MatchStatus, hasDispute bool) string {
	switch s {
	case domain.MatchVerified:
		return "confirmed_by_both_teams"
	case domain.MatchDisputed:
		return "dispute_open"
	case domain.MatchExpired:
		return "confirmation_deadline_passed"
	case domain.MatchVoid:
		return "voided"
	default:
		if hasDispute {
			return "dispute_open"
		}
		return "awaiting_confirmations"
	}
}

func rankingImpactReason(s domain.MatchStatus, processed bool) string {
	switch {
	case s == domain.MatchVerified && processed:
		return "rating_applied"
	case s == domain.MatchVerified:
		return "rating_pending"
	case s == domain.MatchDisputed:
		return "excluded_disputed"
	case s == domain.MatchExpired:
		return "excluded_expired"
	case s == domain.MatchVoid:
		return "excluded_void"
	default:
		return "excluded_unconfirmed"
	}
}

func (r *HistoryRepo) Participants(ctx context.Context, matchID string, maskPrivate bool) ([]history.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mp.user_id, up.alias, up.gender, up.is_public, mp.team_no,
		       COALESCE(mc.status, 'pending'), mc.decided_at
		FROM match_participants mp
		JOIN user_profiles up ON up.user_id = mp.user_id
		LEFT JOIN match_confirmations mc ON mc.match_id = mp.match_id AND mc.user_id = mp.user_id
		WHERE mp.match_id = $1
		ORDER BY mp.team_no, up.alias
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list history participants: %w", err)
	}
	defer rows.Close()

	var out []history.Participant
	for rows.Next() {
		var (
			p        history.Participant
			gender   string
			isPublic bool
		)
		if err := rows.Scan(&p.UserID, &p.Alias, &gender, &isPublic, &p.TeamNo, &p.ConfirmationStatus, &p.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan history participant: %w", err)
		}
		if maskPrivate && !isPublic {
			p.Alias = maskedAlias
		} else {
			g := gender
			p.Gender = &g
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *HistoryRepo) CanonicalScore(ctx context.Context, matchID string) (*history.Score, error) {
	var s history.Score
	err := r.db.QueryRowContext(ctx, `
		SELECT score_json, winner_team_no FROM match_scores WHERE match_id = $1
	`, matchID).Scan(&s.ScoreJSON, &s.WinnerTeamNo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load canonical score: %w", err)
	}
	return &s, nil
}
