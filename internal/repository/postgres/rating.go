package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/rivio/ranking-server/internal/audit"
	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/elo"
	"github.com/rivio/ranking-server/internal/score"
	"github.com/rivio/ranking-server/internal/service/match"
)

// RatingParams carries the provisional-window settings into the rating
// application.
type RatingParams struct {
	ProvisionalMatches int
	ProvisionalCap     int
}

// ratingOutcome is what the analytics projection needs from the rating
// step: per-user before/after snapshots keyed by user id.
type ratingOutcome struct {
	events map[string]*domain.RatingEvent
}

// applyRatingTx applies the Elo update for a verified match inside the
// caller's transaction. rank_processed_at is the single-shot latch: a
// match already processed, not verified, or frozen by a dispute is a
// no-op and returns a nil outcome.
func applyRatingTx(ctx context.Context, tx *sql.Tx, matchID string, p RatingParams) (*ratingOutcome, error) {
	var (
		ladderCode      string
		categoryID      string
		status          string
		hasDispute      bool
		rankProcessedAt sql.NullTime
		antiFarming     float64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT ladder_code, category_id, status, has_dispute, rank_processed_at, anti_farming_weight
		FROM matches
		WHERE id = $1
		FOR UPDATE
	`, matchID).Scan(&ladderCode, &categoryID, &status, &hasDispute, &rankProcessedAt, &antiFarming)
	if err == sql.ErrNoRows {
		return nil, match.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock match for rating: %w", err)
	}
	if status != string(domain.MatchVerified) || hasDispute || rankProcessedAt.Valid {
		return nil, nil
	}

	var (
		scoreJSON    []byte
		winnerTeamNo int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT score_json, winner_team_no FROM match_scores WHERE match_id = $1
	`, matchID).Scan(&scoreJSON, &winnerTeamNo)
	if err == sql.ErrNoRows {
		return nil, match.ErrScoreMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load canonical score: %w", err)
	}
	sc, err := score.Parse(scoreJSON)
	if err != nil {
		return nil, fmt.Errorf("parse canonical score: %w", err)
	}

	type player struct {
		userID string
		teamNo int
		rating int
		vm     int
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, team_no FROM match_participants WHERE match_id = $1 ORDER BY user_id
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	var players []player
	for rows.Next() {
		var pl player
		if err := rows.Scan(&pl.userID, &pl.teamNo); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		players = append(players, pl)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(players) != 4 {
		return nil, match.ErrBadParticipants
	}

	ids := make([]string, len(players))
	for i, pl := range players {
		ids[i] = pl.userID
	}

	// lock the four ladder states in user-id order
	stateRows, err := tx.QueryContext(ctx, `
		SELECT user_id, rating, verified_matches
		FROM user_ladder_states
		WHERE ladder_code = $1 AND user_id = ANY($2)
		ORDER BY user_id
		FOR UPDATE
	`, ladderCode, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lock ladder states: %w", err)
	}
	states := map[string]*player{}
	for i := range players {
		states[players[i].userID] = &players[i]
	}
	locked := 0
	for stateRows.Next() {
		var (
			uid    string
			rating int
			vm     int
		)
		if err := stateRows.Scan(&uid, &rating, &vm); err != nil {
			stateRows.Close()
			return nil, fmt.Errorf("scan ladder state: %w", err)
		}
		states[uid].rating = rating
		states[uid].vm = vm
		locked++
	}
	stateRows.Close()
	if err := stateRows.Err(); err != nil {
		return nil, err
	}
	if locked != 4 {
		return nil, match.ErrMissingLadderState
	}

	var t1a, t1b, t2a, t2b *player
	for i := range players {
		pl := &players[i]
		if pl.teamNo == 1 {
			if t1a == nil {
				t1a = pl
			} else {
				t1b = pl
			}
		} else {
			if t2a == nil {
				t2a = pl
			} else {
				t2b = pl
			}
		}
	}
	if t1b == nil || t2b == nil {
		return nil, match.ErrBadParticipants
	}

	vms := []int{t1a.vm, t1b.vm, t2a.vm, t2b.vm}
	k := elo.EffectiveK(vms)
	weight := score.Extract(sc).MovWeight() * antiFarming
	r1 := elo.TeamRating(t1a.rating, t1b.rating)
	r2 := elo.TeamRating(t2a.rating, t2b.rating)
	delta1 := elo.TeamDelta(k, weight, r1, r2, winnerTeamNo == 1)

	out := &ratingOutcome{events: map[string]*domain.RatingEvent{}}
	for i := range players {
		pl := &players[i]
		delta := delta1
		if pl.teamNo == 2 {
			delta = -delta1
		}
		if pl.vm < p.ProvisionalMatches {
			delta = elo.ClampProvisional(delta, p.ProvisionalCap)
		}
		newRating := pl.rating + delta
		newVM := pl.vm + 1

		if _, err := tx.ExecContext(ctx, `
			UPDATE user_ladder_states
			SET rating = $3, verified_matches = $4, is_provisional = $5, updated_at = now()
			WHERE user_id = $1 AND ladder_code = $2
		`, pl.userID, ladderCode, newRating, newVM, newVM < p.ProvisionalMatches); err != nil {
			return nil, fmt.Errorf("update ladder state: %w", err)
		}

		ev := &domain.RatingEvent{
			ID:         uuid.NewString(),
			MatchID:    matchID,
			LadderCode: ladderCode,
			CategoryID: categoryID,
			UserID:     pl.userID,
			OldRating:  pl.rating,
			NewRating:  newRating,
			Delta:      delta,
			KFactor:    k,
			Weight:     weight,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rating_events (id, match_id, ladder_code, category_id, user_id,
			                           old_rating, new_rating, delta, k_factor, weight)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, ev.ID, ev.MatchID, ev.LadderCode, ev.CategoryID, ev.UserID,
			ev.OldRating, ev.NewRating, ev.Delta, ev.KFactor, ev.Weight); err != nil {
			return nil, fmt.Errorf("insert rating event: %w", err)
		}
		out.events[pl.userID] = ev
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE matches SET rank_processed_at = now(), updated_at = now() WHERE id = $1
	`, matchID); err != nil {
		return nil, fmt.Errorf("stamp rank processed: %w", err)
	}

	if err := audit.Append(ctx, tx, "", "match", matchID, "ranking/applied", map[string]interface{}{
		"k_factor": k,
		"weight":   weight,
	}); err != nil {
		return nil, err
	}
	return out, nil
}
