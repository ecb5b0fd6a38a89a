package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	mathbits "math/bits"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/score"
	"github.com/rivio/ranking-server/internal/service/analytics"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// bitsWinRate is popcount over the newest n=min(size,window) bits.
func bitsWinRate(formBits uint64, size, window int) float64 {
	n := size
	if n > window {
		n = window
	}
	if n == 0 {
		return 0
	}
	mask := (uint64(1) << uint(n)) - 1
	return round2(float64(mathbits.OnesCount64(formBits&mask)) * 100 / float64(n))
}

// applyAnalyticsTx projects one verified match into the four analytics
// tables for all four participants, inside the caller's transaction.
// The (user_id, match_id) insert is the idempotency fence; during a
// rebuild the tables start empty so the fence never fires.
func applyAnalyticsTx(ctx context.Context, tx *sql.Tx, matchID string, enforceIdempotency bool) error {
	var (
		ladderCode string
		playedAt   time.Time
	)
	err := tx.QueryRowContext(ctx, `
		SELECT ladder_code, played_at FROM matches WHERE id = $1
	`, matchID).Scan(&ladderCode, &playedAt)
	if err != nil {
		return fmt.Errorf("load match for analytics: %w", err)
	}

	var (
		scoreJSON    []byte
		winnerTeamNo int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT score_json, winner_team_no FROM match_scores WHERE match_id = $1
	`, matchID).Scan(&scoreJSON, &winnerTeamNo)
	if err != nil {
		return fmt.Errorf("load score for analytics: %w", err)
	}
	sc, err := score.Parse(scoreJSON)
	if err != nil {
		return fmt.Errorf("parse score for analytics: %w", err)
	}
	isClose := score.Extract(sc).IsClose()

	type member struct {
		userID string
		teamNo int
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, team_no FROM match_participants WHERE match_id = $1 ORDER BY user_id
	`, matchID)
	if err != nil {
		return fmt.Errorf("load participants for analytics: %w", err)
	}
	var members []member
	for rows.Next() {
		var m member
		if err := rows.Scan(&m.userID, &m.teamNo); err != nil {
			rows.Close()
			return fmt.Errorf("scan participant: %w", err)
		}
		members = append(members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	type ratingEv struct{ oldRating, newRating, delta int }
	events := map[string]ratingEv{}
	evRows, err := tx.QueryContext(ctx, `
		SELECT user_id, old_rating, new_rating, delta FROM rating_events WHERE match_id = $1
	`, matchID)
	if err != nil {
		return fmt.Errorf("load rating events: %w", err)
	}
	for evRows.Next() {
		var (
			uid string
			ev  ratingEv
		)
		if err := evRows.Scan(&uid, &ev.oldRating, &ev.newRating, &ev.delta); err != nil {
			evRows.Close()
			return fmt.Errorf("scan rating event: %w", err)
		}
		events[uid] = ev
	}
	evRows.Close()
	if err := evRows.Err(); err != nil {
		return err
	}

	ladderRating := func(userID string) (int, error) {
		var r int
		err := tx.QueryRowContext(ctx, `
			SELECT rating FROM user_ladder_states WHERE user_id = $1 AND ladder_code = $2
		`, userID, ladderCode).Scan(&r)
		if err == sql.ErrNoRows {
			return domain.DefaultRating, nil
		}
		return r, err
	}

	for _, m := range members {
		isWin := m.teamNo == winnerTeamNo

		var teammate *string
		var opponents []string
		for _, other := range members {
			if other.userID == m.userID {
				continue
			}
			if other.teamNo == m.teamNo {
				u := other.userID
				teammate = &u
			} else {
				opponents = append(opponents, other.userID)
			}
		}

		selfBefore := 0
		var ratingBefore, ratingAfter, ratingDelta *int
		if ev, ok := events[m.userID]; ok {
			before, after, delta := ev.oldRating, ev.newRating, ev.delta
			ratingBefore, ratingAfter, ratingDelta = &before, &after, &delta
			selfBefore = before
		} else {
			if selfBefore, err = ladderRating(m.userID); err != nil {
				return fmt.Errorf("fallback self rating: %w", err)
			}
		}

		oppSum, oppN := 0, 0
		for _, opp := range opponents {
			if ev, ok := events[opp]; ok {
				oppSum += ev.oldRating
			} else {
				r, err := ladderRating(opp)
				if err != nil {
					return fmt.Errorf("fallback opponent rating: %w", err)
				}
				oppSum += r
			}
			oppN++
		}
		var oppAvg *int
		bucket := domain.QualitySimilar
		if oppN > 0 {
			avg := int(math.Round(float64(oppSum) / float64(oppN)))
			oppAvg = &avg
			bucket = domain.BucketForDiff(avg - selfBefore)
		}

		var opponentA, opponentB *string
		if len(opponents) > 0 {
			opponentA = &opponents[0]
		}
		if len(opponents) > 1 {
			opponentB = &opponents[1]
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_analytics_match_applied (
				user_id, match_id, ladder_code, is_win, played_at,
				is_close_match, teammate_user_id, opponent_a_user_id, opponent_b_user_id,
				opponent_avg_rating, quality_bucket,
				rating_before, rating_after, rating_delta
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (user_id, match_id) DO NOTHING
		`, m.userID, matchID, ladderCode, isWin, playedAt,
			isClose, teammate, opponentA, opponentB,
			oppAvg, bucket, ratingBefore, ratingAfter, ratingDelta)
		if err != nil {
			return fmt.Errorf("insert applied row: %w", err)
		}
		if enforceIdempotency {
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_analytics_states (user_id, ladder_code)
			VALUES ($1, $2)
			ON CONFLICT (user_id, ladder_code) DO NOTHING
		`, m.userID, ladderCode); err != nil {
			return fmt.Errorf("seed analytics state: %w", err)
		}

		st := domain.AnalyticsState{}
		var formBits, rollingBits int64
		err = tx.QueryRowContext(ctx, `
			SELECT total_verified_matches, wins, losses,
			       current_streak_type, current_streak_len, best_win_streak, best_loss_streak,
			       recent_form_bits, recent_form_size,
			       rolling_bits_50, rolling_size_50,
			       close_matches,
			       vs_stronger_matches, vs_stronger_wins,
			       vs_similar_matches, vs_similar_wins,
			       vs_weaker_matches, vs_weaker_wins,
			       peak_rating
			FROM user_analytics_states
			WHERE user_id = $1 AND ladder_code = $2
			FOR UPDATE
		`, m.userID, ladderCode).Scan(
			&st.TotalMatches, &st.Wins, &st.Losses,
			&st.CurrentStreakType, &st.CurrentStreakLen, &st.BestWinStreak, &st.BestLossStreak,
			&formBits, &st.RecentFormSize,
			&rollingBits, &st.RollingSize50,
			&st.CloseMatches,
			&st.VsStrongerMatches, &st.VsStrongerWins,
			&st.VsSimilarMatches, &st.VsSimilarWins,
			&st.VsWeakerMatches, &st.VsWeakerWins,
			&st.PeakRating,
		)
		if err != nil {
			return fmt.Errorf("lock analytics state: %w", err)
		}
		st.RecentFormBits = uint64(formBits)
		st.RollingBits50 = uint64(rollingBits)

		st.TotalMatches++
		outcome := domain.StreakLoss
		outcomeBit := uint64(0)
		if isWin {
			st.Wins++
			outcome = domain.StreakWin
			outcomeBit = 1
		} else {
			st.Losses++
		}
		st.WinRate = round2(float64(st.Wins) * 100 / float64(st.TotalMatches))

		if st.CurrentStreakType != nil && *st.CurrentStreakType == outcome {
			st.CurrentStreakLen++
		} else {
			o := outcome
			st.CurrentStreakType = &o
			st.CurrentStreakLen = 1
		}
		if outcome == domain.StreakWin && st.CurrentStreakLen > st.BestWinStreak {
			st.BestWinStreak = st.CurrentStreakLen
		}
		if outcome == domain.StreakLoss && st.CurrentStreakLen > st.BestLossStreak {
			st.BestLossStreak = st.CurrentStreakLen
		}

		st.RecentFormBits = ((st.RecentFormBits << 1) | outcomeBit) & domain.RecentFormMask
		if st.RecentFormSize < domain.RecentFormWindow {
			st.RecentFormSize++
		}
		st.RollingBits50 = ((st.RollingBits50 << 1) | outcomeBit) & domain.RollingFormMask
		if st.RollingSize50 < domain.RollingFormWindow {
			st.RollingSize50++
		}

		recent10N := st.RecentFormSize
		if recent10N > 10 {
			recent10N = 10
		}
		mask10 := (uint64(1) << uint(recent10N)) - 1
		st.Recent10Matches = recent10N
		st.Recent10Wins = mathbits.OnesCount64(st.RecentFormBits & mask10)
		st.Recent10WinRate = bitsWinRate(st.RecentFormBits, st.RecentFormSize, 10)
		st.Rolling5WinRate = bitsWinRate(st.RollingBits50, st.RollingSize50, 5)
		st.Rolling20WinRate = bitsWinRate(st.RollingBits50, st.RollingSize50, 20)
		st.Rolling50WinRate = bitsWinRate(st.RollingBits50, st.RollingSize50, 50)

		rolling10 := bitsWinRate(st.RollingBits50, st.RollingSize50, 10)

		// activity windows are relative to this match's played_at
		err = tx.QueryRowContext(ctx, `
			SELECT count(*) FILTER (WHERE played_at >= $3),
			       count(*) FILTER (WHERE played_at >= $4),
			       count(*) FILTER (WHERE played_at >= $5)
			FROM user_analytics_match_applied
			WHERE user_id = $1 AND ladder_code = $2
		`, m.userID, ladderCode,
			playedAt.Add(-7*24*time.Hour),
			playedAt.Add(-30*24*time.Hour),
			playedAt.Add(-90*24*time.Hour),
		).Scan(&st.Matches7d, &st.Matches30d, &st.Matches90d)
		if err != nil {
			return fmt.Errorf("count activity windows: %w", err)
		}

		if isClose {
			st.CloseMatches++
		}
		st.CloseMatchRate = round2(float64(st.CloseMatches) * 100 / float64(st.TotalMatches))

		winInc := 0
		if isWin {
			winInc = 1
		}
		switch bucket {
		case domain.QualityStronger:
			st.VsStrongerMatches++
			st.VsStrongerWins += winInc
		case domain.QualityWeaker:
			st.VsWeakerMatches++
			st.VsWeakerWins += winInc
		default:
			st.VsSimilarMatches++
			st.VsSimilarWins += winInc
		}
		if st.VsStrongerMatches > 0 {
			st.VsStrongerWinRate = round2(float64(st.VsStrongerWins) * 100 / float64(st.VsStrongerMatches))
		}
		if st.VsSimilarMatches > 0 {
			st.VsSimilarWinRate = round2(float64(st.VsSimilarWins) * 100 / float64(st.VsSimilarMatches))
		}
		if st.VsWeakerMatches > 0 {
			st.VsWeakerWinRate = round2(float64(st.VsWeakerWins) * 100 / float64(st.VsWeakerMatches))
		}

		current, err := ladderRating(m.userID)
		if err != nil {
			return fmt.Errorf("load current rating: %w", err)
		}
		st.CurrentRating = &current
		if st.PeakRating == nil || current > *st.PeakRating {
			st.PeakRating = &current
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE user_analytics_states
			SET total_verified_matches = $3, wins = $4, losses = $5, win_rate = $6,
			    current_streak_type = $7, current_streak_len = $8,
			    best_win_streak = $9, best_loss_streak = $10,
			    recent_form_bits = $11, recent_form_size = $12,
			    recent_10_matches = $13, recent_10_wins = $14, recent_10_win_rate = $15,
			    rolling_bits_50 = $16, rolling_size_50 = $17,
			    rolling_5_win_rate = $18, rolling_20_win_rate = $19, rolling_50_win_rate = $20,
			    matches_7d = $21, matches_30d = $22, matches_90d = $23,
			    close_matches = $24, close_match_rate = $25,
			    vs_stronger_matches = $26, vs_stronger_wins = $27, vs_stronger_win_rate = $28,
			    vs_similar_matches = $29, vs_similar_wins = $30, vs_similar_win_rate = $31,
			    vs_weaker_matches = $32, vs_weaker_wins = $33, vs_weaker_win_rate = $34,
			    current_rating = $35, peak_rating = $36,
			    last_match_id = $37, last_match_at = $38,
			    updated_at = now()
			WHERE user_id = $1 AND ladder_code = $2
		`, m.userID, ladderCode,
			st.TotalMatches, st.Wins, st.Losses, st.WinRate,
			st.CurrentStreakType, st.CurrentStreakLen,
			st.BestWinStreak, st.BestLossStreak,
			int64(st.RecentFormBits), st.RecentFormSize,
			st.Recent10Matches, st.Recent10Wins, st.Recent10WinRate,
			int64(st.RollingBits50), st.RollingSize50,
			st.Rolling5WinRate, st.Rolling20WinRate, st.Rolling50WinRate,
			st.Matches7d, st.Matches30d, st.Matches90d,
			st.CloseMatches, st.CloseMatchRate,
			st.VsStrongerMatches, st.VsStrongerWins, st.VsStrongerWinRate,
			st.VsSimilarMatches, st.VsSimilarWins, st.VsSimilarWinRate,
			st.VsWeakerMatches, st.VsWeakerWins, st.VsWeakerWinRate,
			st.CurrentRating, st.PeakRating,
			matchID, playedAt,
		); err != nil {
			return fmt.Errorf("update analytics state: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE user_analytics_match_applied
			SET rolling_10_win_rate = $3, rolling_20_win_rate = $4, rolling_50_win_rate = $5,
			    streak_type_after = $6, streak_len_after = $7
			WHERE user_id = $1 AND match_id = $2
		`, m.userID, matchID,
			rolling10, st.Rolling20WinRate, st.Rolling50WinRate,
			st.CurrentStreakType, st.CurrentStreakLen,
		); err != nil {
			return fmt.Errorf("patch applied row: %w", err)
		}

		if teammate != nil {
			if err := upsertPairTx(ctx, tx, "user_analytics_partners", m.userID, ladderCode, *teammate, isWin, playedAt); err != nil {
				return err
			}
		}
		for _, opp := range opponents {
			if err := upsertPairTx(ctx, tx, "user_analytics_rivals", m.userID, ladderCode, opp, isWin, playedAt); err != nil {
				return err
			}
		}
	}
	return nil
}

func upsertPairTx(ctx context.Context, tx *sql.Tx, table, userID, ladderCode, otherID string, isWin bool, playedAt time.Time) error {
	winInc, lossInc := 0, 1
	if isWin {
		winInc, lossInc = 1, 0
	}
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, ladder_code, other_user_id, matches, wins, losses, win_rate, last_played_at)
		VALUES ($1, $2, $3, 1, $4, $5, $4 * 100.0, $6)
		ON CONFLICT (user_id, ladder_code, other_user_id) DO UPDATE
		SET matches = %[1]s.matches + 1,
		    wins = %[1]s.wins + $4,
		    losses = %[1]s.losses + $5,
		    win_rate = round((%[1]s.wins + $4) * 100.0 / (%[1]s.matches + 1), 2),
		    last_played_at = GREATEST(%[1]s.last_played_at, $6)
	`, table), userID, ladderCode, otherID, winInc, lossInc, playedAt)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// AnalyticsRepo implements analytics.Repository against PostgreSQL.
type AnalyticsRepo struct{ db *sql.DB }

// NewAnalyticsRepo creates a Postgres-backed analytics repository.
func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo { return &AnalyticsRepo{db: db} }

func (r *AnalyticsRepo) ProfileVisibility(ctx context.Context, userID string) (bool, bool, error) {
	var isPublic bool
	err := r.db.QueryRowContext(ctx, `
		SELECT is_public FROM user_profiles WHERE user_id = $1
	`, userID).Scan(&isPublic)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("profile visibility: %w", err)
	}
	return true, isPublic, nil
}

func (r *AnalyticsRepo) States(ctx context.Context, userID, ladder string) ([]domain.AnalyticsState, error) {
	q := `
		SELECT user_id, ladder_code, total_verified_matches, wins, losses, win_rate,
		       current_streak_type, current_streak_len, best_win_streak, best_loss_streak,
		       recent_form_bits, recent_form_size,
		       recent_10_matches, recent_10_wins, recent_10_win_rate,
		       rolling_bits_50, rolling_size_50,
		       rolling_5_win_rate, rolling_20_win_rate, rolling_50_win_rate,
		       matches_7d, matches_30d, matches_90d,
		       close_matches, close_match_rate,
		       vs_stronger_matches, vs_stronger_wins, vs_stronger_win_rate,
		       vs_similar_matches, vs_similar_wins, vs_similar_win_rate,
		       vs_weaker_matches, vs_weaker_wins, vs_weaker_win_rate,
		       current_rating, peak_rating, last_match_id, last_match_at,
		       created_at, updated_at
		FROM user_analytics_states
		WHERE user_id = $1`
	args := []interface{}{userID}
	if ladder != "" {
		args = append(args, ladder)
		q += ` AND ladder_code = $2`
	}
	q += ` ORDER BY ladder_code`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("analytics states: %w", err)
	}
	defer rows.Close()

	var out []domain.AnalyticsState
	for rows.Next() {
		var st domain.AnalyticsState
		var formBits, rollingBits int64
		if err := rows.Scan(
			&st.UserID, &st.LadderCode, &st.TotalMatches, &st.Wins, &st.Losses, &st.WinRate,
			&st.CurrentStreakType, &st.CurrentStreakLen, &st.BestWinStreak, &st.BestLossStreak,
			&formBits, &st.RecentFormSize,
			&st.Recent10Matches, &st.Recent10Wins, &st.Recent10WinRate,
			&rollingBits, &st.RollingSize50,
			&st.Rolling5WinRate, &st.Rolling20WinRate, &st.Rolling50WinRate,
			&st.Matches7d, &st.Matches30d, &st.Matches90d,
			&st.CloseMatches, &st.CloseMatchRate,
			&st.VsStrongerMatches, &st.VsStrongerWins, &st.VsStrongerWinRate,
			&st.VsSimilarMatches, &st.VsSimilarWins, &st.VsSimilarWinRate,
			&st.VsWeakerMatches, &st.VsWeakerWins, &st.VsWeakerWinRate,
			&st.CurrentRating, &st.PeakRating, &st.LastMatchID, &st.LastMatchAt,
			&st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analytics state: %w", err)
		}
		st.RecentFormBits = uint64(formBits)
		st.RollingBits50 = uint64(rollingBits)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *AnalyticsRepo) Trend(ctx context.Context, userID, ladder string, limit int) ([]analytics.TrendPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT match_id, played_at, is_win, rating_after, rating_delta,
		       rolling_10_win_rate, rolling_20_win_rate, rolling_50_win_rate,
		       streak_type_after, streak_len_after
		FROM user_analytics_match_applied
		WHERE user_id = $1 AND ladder_code = $2
		ORDER BY played_at DESC, created_at DESC
		LIMIT $3
	`, userID, ladder, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics trend: %w", err)
	}
	defer rows.Close()

	var out []analytics.TrendPoint
	for rows.Next() {
		var p analytics.TrendPoint
		if err := rows.Scan(
			&p.MatchID, &p.PlayedAt, &p.IsWin, &p.RatingAfter, &p.RatingDelta,
			&p.Rolling10WinRate, &p.Rolling20WinRate, &p.Rolling50WinRate,
			&p.StreakTypeAfter, &p.StreakLenAfter,
		); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// query walks newest first; callers chart oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *AnalyticsRepo) Volume(ctx context.Context, userID, ladder, bucket string, since time.Time) ([]analytics.VolumePoint, error) {
	if bucket != "week" && bucket != "month" {
		return nil, fmt.Errorf("volume bucket must be week or month")
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT date_trunc($3, played_at) AS bucket,
		       count(*),
		       count(*) FILTER (WHERE is_win)
		FROM user_analytics_match_applied
		WHERE user_id = $1 AND ladder_code = $2 AND played_at >= $4
		GROUP BY 1
		ORDER BY 1
	`, userID, ladder, bucket, since)
	if err != nil {
		return nil, fmt.Errorf("analytics volume: %w", err)
	}
	defer rows.Close()

	var out []analytics.VolumePoint
	for rows.Next() {
		var p analytics.VolumePoint
		if err := rows.Scan(&p.Bucket, &p.Matches, &p.Wins); err != nil {
			return nil, fmt.Errorf("scan volume point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *AnalyticsRepo) TopPartners(ctx context.Context, userID, ladder string, limit int) ([]domain.PairStats, error) {
	return r.topPairs(ctx, "user_analytics_partners", userID, ladder, limit)
}

func (r *AnalyticsRepo) TopRivals(ctx context.Context, userID, ladder string, limit int) ([]domain.PairStats, error) {
	return r.topPairs(ctx, "user_analytics_rivals", userID, ladder, limit)
}

func (r *AnalyticsRepo) topPairs(ctx context.Context, table, userID, ladder string, limit int) ([]domain.PairStats, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT p.user_id, p.ladder_code, p.other_user_id, COALESCE(up.alias, ''),
		       p.matches, p.wins, p.losses, p.win_rate, p.last_played_at
		FROM %s p
		LEFT JOIN user_profiles up ON up.user_id = p.other_user_id
		WHERE p.user_id = $1 AND p.ladder_code = $2
		ORDER BY p.matches DESC, p.wins DESC, p.other_user_id
		LIMIT $3
	`, table), userID, ladder, limit)
	if err != nil {
		return nil, fmt.Errorf("top pairs %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.PairStats
	for rows.Next() {
		var p domain.PairStats
		if err := rows.Scan(
			&p.UserID, &p.LadderCode, &p.OtherUserID, &p.OtherAlias,
			&p.Matches, &p.Wins, &p.Losses, &p.WinRate, &p.LastPlayedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pair stats: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Rebuild truncates the projection and replays every verified match in
// deterministic order within one transaction.
func (r *AnalyticsRepo) Rebuild(ctx context.Context) (analytics.RebuildResult, error) {
	res := analytics.RebuildResult{StartedAt: time.Now().UTC()}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			TRUNCATE user_analytics_states, user_analytics_match_applied,
			         user_analytics_partners, user_analytics_rivals
		`); err != nil {
			return fmt.Errorf("truncate analytics tables: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM matches
			WHERE status = 'verified'
			ORDER BY played_at, created_at, id
		`)
		if err != nil {
			return fmt.Errorf("list verified matches: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan match id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if err := applyAnalyticsTx(ctx, tx, id, false); err != nil {
				return fmt.Errorf("replay match %s: %w", id, err)
			}
		}
		res.Matches = len(ids)

		return tx.QueryRowContext(ctx, `
			SELECT count(*) FROM user_analytics_match_applied
		`).Scan(&res.AppliedRows)
	})
	if err != nil {
		return analytics.RebuildResult{}, err
	}
	res.FinishedAt = time.Now().UTC()
	return res, nil
}
