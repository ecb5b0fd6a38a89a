package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rivio/ranking-server/internal/audit"
	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/score"
	"github.com/rivio/ranking-server/internal/service/match"
)

// MatchRepo implements match.Repository. Confirm and Dispute own their
// transactions end to end, including inline rating and analytics
// application on ratification.
type MatchRepo struct {
	db     *sql.DB
	rating RatingParams
}

// NewMatchRepo creates a Postgres-backed match repository.
func NewMatchRepo(db *sql.DB, rating RatingParams) *MatchRepo {
	return &MatchRepo{db: db, rating: rating}
}

func (r *MatchRepo) IsParticipant(ctx context.Context, matchID, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM match_participants WHERE match_id = $1 AND user_id = $2
		)
	`, matchID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return ok, nil
}

func (r *MatchRepo) CountPendingCreated(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM matches
		WHERE created_by = $1 AND status = 'pending_confirm' AND confirmation_deadline > now()
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending matches: %w", err)
	}
	return n, nil
}

func (r *MatchRepo) CountRecentExpired(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM matches
		WHERE created_by = $1
		  AND created_at >= $2
		  AND (status = 'expired'
		       OR (status = 'pending_confirm' AND confirmation_deadline <= now()))
	`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expired matches: %w", err)
	}
	return n, nil
}

func (r *MatchRepo) ClubActive(ctx context.Context, clubID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM clubs WHERE id = $1 AND is_active)
	`, clubID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check club: %w", err)
	}
	return ok, nil
}

func (r *MatchRepo) ParticipantProfiles(ctx context.Context, userIDs []string) ([]match.ParticipantProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT up.user_id, up.alias, up.gender,
		       EXISTS (
		           SELECT 1 FROM auth_identities ai
		           WHERE ai.user_id = up.user_id AND ai.is_verified
		       )
		FROM user_profiles up
		JOIN users u ON u.id = up.user_id
		WHERE up.user_id = ANY($1) AND u.status = 'active'
	`, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("load participant profiles: %w", err)
	}
	defer rows.Close()

	var out []match.ParticipantProfile
	for rows.Next() {
		var p match.ParticipantProfile
		if err := rows.Scan(&p.UserID, &p.Alias, &p.Gender, &p.HasVerified); err != nil {
			return nil, fmt.Errorf("scan participant profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *MatchRepo) LadderSortOrders(ctx context.Context, ladderCode string, userIDs []string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT uls.user_id, c.sort_order
		FROM user_ladder_states uls
		JOIN categories c ON c.id = uls.category_id
		WHERE uls.ladder_code = $1 AND uls.user_id = ANY($2)
	`, ladderCode, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("load ladder sort orders: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int, len(userIDs))
	for rows.Next() {
		var (
			uid   string
			order int
		)
		if err := rows.Scan(&uid, &order); err != nil {
			return nil, fmt.Errorf("scan sort order: %w", err)
		}
		out[uid] = order
	}
	return out, rows.Err()
}

func (r *MatchRepo) CategoriesForLadder(ctx context.Context, ladderCode string) ([]domain.Category, error) {
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

func (r *MatchRepo) CreateMatch(ctx context.Context, seed match.CreateSeed) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO matches (
				id, ladder_code, category_id, club_id, played_at, created_by,
				status, confirmation_deadline, confirmed_count
			)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending_confirm', $7, 1)
		`, seed.MatchID, seed.LadderCode, seed.CategoryID, seed.ClubID,
			seed.PlayedAt, seed.CreatedBy, seed.Deadline)
		if err != nil {
			return fmt.Errorf("insert match: %w", err)
		}

		for _, p := range seed.Participants {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO match_participants (match_id, user_id, team_no)
				VALUES ($1, $2, $3)
			`, seed.MatchID, p.UserID, p.TeamNo); err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO match_scores (match_id, score_json, winner_team_no)
			VALUES ($1, $2, $3)
		`, seed.MatchID, score.Marshal(seed.Score), seed.WinnerTeamNo); err != nil {
			return fmt.Errorf("insert score: %w", err)
		}

		// creator is pre-confirmed, everyone else starts pending
		for _, p := range seed.Participants {
			if p.UserID == seed.CreatedBy {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO match_confirmations (match_id, user_id, status, decided_at, source)
					VALUES ($1, $2, 'confirmed', now(), 'creator')
				`, seed.MatchID, p.UserID)
			} else {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO match_confirmations (match_id, user_id, status)
					VALUES ($1, $2, 'pending')
				`, seed.MatchID, p.UserID)
			}
			if err != nil {
				return fmt.Errorf("insert confirmation: %w", err)
			}
		}

		return audit.Append(ctx, tx, seed.CreatedBy, "match", seed.MatchID, "created", map[string]interface{}{
			"ladder_code": seed.LadderCode,
			"winner_team": seed.WinnerTeamNo,
		})
	})
}

const matchColumns = `
	id, ladder_code, category_id, club_id, played_at, created_by,
	status, confirmation_deadline, confirmed_count, has_dispute,
	rank_processed_at, anti_farming_weight,
	proposed_score_json, proposed_winner_team_no, proposed_by, proposed_at,
	proposal_count, created_at, updated_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*domain.Match, error) {
	var m domain.Match
	err := row.Scan(
		&m.ID, &m.LadderCode, &m.CategoryID, &m.ClubID, &m.PlayedAt, &m.CreatedBy,
		&m.Status, &m.ConfirmationDeadline, &m.ConfirmedCount, &m.HasDispute,
		&m.RankProcessedAt, &m.AntiFarmingWeight,
		&m.ProposedScoreJSON, &m.ProposedWinnerTeam, &m.ProposedBy, &m.ProposedAt,
		&m.ProposalCount, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepo) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	m, err := scanMatch(r.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`, matchID))
	if err == sql.ErrNoRows {
		return nil, match.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	return m, nil
}

func (r *MatchRepo) MarkExpired(ctx context.Context, matchID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matches
		SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'pending_confirm'
	`, matchID)
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	return nil
}

func (r *MatchRepo) Confirmations(ctx context.Context, matchID string) (*match.ConfirmationsView, error) {
	view := match.ConfirmationsView{MatchID: matchID}
	err := r.db.QueryRowContext(ctx, `
		SELECT status, confirmation_deadline, confirmed_count, has_dispute
		FROM matches WHERE id = $1
	`, matchID).Scan(&view.Status, &view.ConfirmationDeadline, &view.ConfirmedCount, &view.HasDispute)
	if err == sql.ErrNoRows {
		return nil, match.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load match for confirmations: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT mc.user_id, COALESCE(up.alias, ''), mp.team_no, mc.status, mc.decided_at
		FROM match_confirmations mc
		JOIN match_participants mp ON mp.match_id = mc.match_id AND mp.user_id = mc.user_id
		LEFT JOIN user_profiles up ON up.user_id = mc.user_id
		WHERE mc.match_id = $1
		ORDER BY mp.team_no, mc.user_id
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list confirmations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row match.ConfirmationRow
		if err := rows.Scan(&row.UserID, &row.Alias, &row.TeamNo, &row.Status, &row.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan confirmation: %w", err)
		}
		view.Rows = append(view.Rows, row)
	}
	return &view, rows.Err()
}

func (r *MatchRepo) Detail(ctx context.Context, matchID string) (*match.DetailView, error) {
	var d match.DetailView
	err := r.db.QueryRowContext(ctx, `
		SELECT m.id, m.ladder_code, m.category_id, c.code, m.club_id, cl.name,
		       m.played_at, m.created_by, m.status, m.confirmation_deadline,
		       m.confirmed_count, m.has_dispute,
		       COALESCE(m.proposed_score_json, ms.score_json),
		       COALESCE(m.proposed_winner_team_no, ms.winner_team_no)
		FROM matches m
		JOIN categories c ON c.id = m.category_id
		LEFT JOIN clubs cl ON cl.id = m.club_id
		JOIN match_scores ms ON ms.match_id = m.id
		WHERE m.id = $1
	`, matchID).Scan(
		&d.ID, &d.LadderCode, &d.CategoryID, &d.CategoryCode, &d.ClubID, &d.ClubName,
		&d.PlayedAt, &d.CreatedBy, &d.Status, &d.ConfirmationDeadline,
		&d.ConfirmedCount, &d.HasDispute,
		&d.ScoreJSON, &d.WinnerTeamNo,
	)
	if err == sql.ErrNoRows {
		return nil, match.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load match detail: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT mp.user_id, COALESCE(up.alias, ''), mp.team_no
		FROM match_participants mp
		LEFT JOIN user_profiles up ON up.user_id = mp.user_id
		WHERE mp.match_id = $1
		ORDER BY mp.team_no, mp.user_id
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p match.ParticipantView
		if err := rows.Scan(&p.UserID, &p.Alias, &p.TeamNo); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		d.Participants = append(d.Participants, p)
	}
	return &d, rows.Err()
}

func (r *MatchRepo) Confirm(ctx context.Context, in match.ConfirmInput) (*match.ConfirmResult, error) {
	var res match.ConfirmResult
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		m, err := scanMatch(tx.QueryRowContext(ctx,
			`SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, in.MatchID))
		if err == sql.ErrNoRows {
			return match.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock match: %w", err)
		}

		now := time.Now().UTC()
		if m.Status == domain.MatchPendingConfirm && now.After(m.ConfirmationDeadline) {
			if _, err := tx.ExecContext(ctx, `
				UPDATE matches SET status = 'expired', updated_at = now() WHERE id = $1
			`, in.MatchID); err != nil {
				return fmt.Errorf("materialize expiration: %w", err)
			}
			return match.ErrExpired
		}
		if m.Status != domain.MatchPendingConfirm {
			return match.ErrNotConfirmable
		}

		var current domain.ConfirmationStatus
		err = tx.QueryRowContext(ctx, `
			SELECT status FROM match_confirmations
			WHERE match_id = $1 AND user_id = $2
			FOR UPDATE
		`, in.MatchID, in.UserID).Scan(&current)
		if err == sql.ErrNoRows {
			return match.ErrNotParticipant
		}
		if err != nil {
			return fmt.Errorf("lock confirmation: %w", err)
		}

		if in.Proposed != nil {
			active, err := activeScoreTx(ctx, tx, m)
			if err != nil {
				return err
			}
			if !score.Equal(*in.Proposed, active) {
				if m.ProposalCount >= in.MaxProposals {
					return match.ErrProposalLimit
				}
				winner := score.Winner(*in.Proposed)
				if _, err := tx.ExecContext(ctx, `
					UPDATE matches
					SET proposed_score_json = $2, proposed_winner_team_no = $3,
					    proposed_by = $4, proposed_at = now(),
					    proposal_count = proposal_count + 1,
					    confirmed_count = 1, updated_at = now()
					WHERE id = $1
				`, in.MatchID, score.Marshal(*in.Proposed), winner, in.UserID); err != nil {
					return fmt.Errorf("record proposal: %w", err)
				}
				// a new proposal voids every prior confirmation
				if _, err := tx.ExecContext(ctx, `
					UPDATE match_confirmations
					SET status = 'pending', decided_at = NULL, note = NULL, source = NULL
					WHERE match_id = $1
				`, in.MatchID); err != nil {
					return fmt.Errorf("reset confirmations: %w", err)
				}
				if _, err := tx.ExecContext(ctx, `
					UPDATE match_confirmations
					SET status = 'confirmed', decided_at = now(), note = $3, source = 'proposal'
					WHERE match_id = $1 AND user_id = $2
				`, in.MatchID, in.UserID, in.Note); err != nil {
					return fmt.Errorf("confirm proposer: %w", err)
				}
				if err := audit.Append(ctx, tx, in.UserID, "match", in.MatchID, "score_proposed", map[string]interface{}{
					"proposal_count": m.ProposalCount + 1,
				}); err != nil {
					return err
				}
				res = match.ConfirmResult{
					OK:               true,
					ConfirmedCount:   1,
					TeamsConfirmed:   1,
					ProposalAccepted: true,
					Status:           string(domain.MatchPendingConfirm),
				}
				return nil
			}
			// identical to the active score, falls through to a plain confirm
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE match_confirmations
			SET status = 'confirmed', decided_at = now(), note = $3, source = COALESCE($4, 'app')
			WHERE match_id = $1 AND user_id = $2
		`, in.MatchID, in.UserID, in.Note, in.Source); err != nil {
			return fmt.Errorf("record confirmation: %w", err)
		}

		var confirmedCount, teamsConfirmed int
		err = tx.QueryRowContext(ctx, `
			SELECT count(*), count(DISTINCT mp.team_no)
			FROM match_confirmations mc
			JOIN match_participants mp ON mp.match_id = mc.match_id AND mp.user_id = mc.user_id
			WHERE mc.match_id = $1 AND mc.status = 'confirmed'
		`, in.MatchID).Scan(&confirmedCount, &teamsConfirmed)
		if err != nil {
			return fmt.Errorf("count confirmations: %w", err)
		}

		status := domain.MatchPendingConfirm
		if teamsConfirmed >= 2 {
			status = domain.MatchVerified
			if m.ProposedScoreJSON != nil {
				// ratify the open proposal into the canonical score
				if _, err := tx.ExecContext(ctx, `
					UPDATE match_scores
					SET score_json = m.proposed_score_json,
					    winner_team_no = m.proposed_winner_team_no,
					    updated_at = now()
					FROM matches m
					WHERE m.id = match_scores.match_id AND match_scores.match_id = $1
				`, in.MatchID); err != nil {
					return fmt.Errorf("ratify proposal: %w", err)
				}
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE matches
				SET status = 'verified', confirmed_count = $2,
				    proposed_score_json = NULL, proposed_winner_team_no = NULL,
				    proposed_by = NULL, proposed_at = NULL,
				    updated_at = now()
				WHERE id = $1
			`, in.MatchID, confirmedCount); err != nil {
				return fmt.Errorf("mark verified: %w", err)
			}

			out, err := applyRatingTx(ctx, tx, in.MatchID, r.rating)
			if err != nil {
				return err
			}
			if out != nil {
				if err := applyAnalyticsTx(ctx, tx, in.MatchID, true); err != nil {
					return err
				}
			}
			if err := audit.Append(ctx, tx, in.UserID, "match", in.MatchID, "verified", map[string]interface{}{
				"confirmed_count": confirmedCount,
			}); err != nil {
				return err
			}
		} else {
			if _, err := tx.ExecContext(ctx, `
				UPDATE matches SET confirmed_count = $2, updated_at = now() WHERE id = $1
			`, in.MatchID, confirmedCount); err != nil {
				return fmt.Errorf("update confirmed count: %w", err)
			}
		}

		res = match.ConfirmResult{
			OK:             true,
			ConfirmedCount: confirmedCount,
			TeamsConfirmed: teamsConfirmed,
			Status:         string(status),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// activeScoreTx resolves the score confirmations currently apply to: an
// open proposal if present, the canonical score otherwise.
func activeScoreTx(ctx context.Context, tx *sql.Tx, m *domain.Match) (score.Score, error) {
	raw := m.ProposedScoreJSON
	if raw == nil {
		err := tx.QueryRowContext(ctx, `
			SELECT score_json FROM match_scores WHERE match_id = $1
		`, m.ID).Scan(&raw)
		if err == sql.ErrNoRows {
			return score.Score{}, match.ErrScoreMissing
		}
		if err != nil {
			return score.Score{}, fmt.Errorf("load active score: %w", err)
		}
	}
	s, err := score.Parse(raw)
	if err != nil {
		return score.Score{}, fmt.Errorf("parse active score: %w", err)
	}
	return s, nil
}

func (r *MatchRepo) Dispute(ctx context.Context, matchID, userID string, note *string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		m, err := scanMatch(tx.QueryRowContext(ctx,
			`SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, matchID))
		if err == sql.ErrNoRows {
			return match.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock match: %w", err)
		}

		now := time.Now().UTC()
		if m.Status == domain.MatchPendingConfirm && now.After(m.ConfirmationDeadline) {
			if _, err := tx.ExecContext(ctx, `
				UPDATE matches SET status = 'expired', updated_at = now() WHERE id = $1
			`, matchID); err != nil {
				return fmt.Errorf("materialize expiration: %w", err)
			}
			return match.ErrExpired
		}
		if m.Status != domain.MatchPendingConfirm {
			return match.ErrNotConfirmable
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE match_confirmations
			SET status = 'disputed', decided_at = now(), note = $3
			WHERE match_id = $1 AND user_id = $2
		`, matchID, userID, note)
		if err != nil {
			return fmt.Errorf("record dispute stance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return match.ErrNotParticipant
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE matches
			SET status = 'disputed', has_dispute = true, updated_at = now()
			WHERE id = $1
		`, matchID); err != nil {
			return fmt.Errorf("freeze match: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO match_disputes (match_id, opened_by, reason_code, comment, status)
			VALUES ($1, $2, 'USER_DISPUTE', $3, 'open')
			ON CONFLICT (match_id) DO NOTHING
		`, matchID, userID, note); err != nil {
			return fmt.Errorf("open dispute: %w", err)
		}

		return audit.Append(ctx, tx, userID, "match", matchID, "disputed", nil)
	})
}
