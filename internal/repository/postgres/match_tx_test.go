package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivio/ranking-server/internal/elo"
	"github.com/rivio/ranking-server/internal/score"
	"github.com/rivio/ranking-server/internal/service/match"
)

var matchColumnNames = []string{
	"id", "ladder_code", "category_id", "club_id", "played_at", "created_by",
	"status", "confirmation_deadline", "confirmed_count", "has_dispute",
	"rank_processed_at", "anti_farming_weight",
	"proposed_score_json", "proposed_winner_team_no", "proposed_by", "proposed_at",
	"proposal_count", "created_at", "updated_at",
}

// pendingMatchRow builds the FOR UPDATE row for a pending_confirm match.
func pendingMatchRow(now time.Time, proposalCount int, proposedJSON []byte, proposedWinner interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(matchColumnNames).AddRow(
		"m-1", "HM", "cat-1", nil, now.Add(-2*time.Hour), "u-ana",
		"pending_confirm", now.Add(22*time.Hour), 1, false,
		nil, 1.0,
		proposedJSON, proposedWinner, nil, nil,
		proposalCount, now.Add(-2*time.Hour), now.Add(-2*time.Hour),
	)
}

func TestConfirmCounterProposalResetsConfirmations(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()

	counter := score.Score{Sets: []score.Set{{T1: 6, T2: 3}, {T1: 3, T2: 6}, {T1: 7, T2: 5}}}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM matches WHERE id = \$1 FOR UPDATE`).
		WithArgs("m-1").
		WillReturnRows(pendingMatchRow(now, 1, nil, nil))
	mock.ExpectQuery(`SELECT status FROM match_confirmations`).
		WithArgs("m-1", "u-bea").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	// no open proposal, so the canonical score is what the counter is compared to
	mock.ExpectQuery(`SELECT score_json FROM match_scores`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"score_json"}).
			AddRow([]byte(`{"sets":[{"t1":6,"t2":3},{"t1":6,"t2":4}]}`)))
	mock.ExpectExec(`proposal_count = proposal_count \+ 1`).
		WithArgs("m-1", sqlmock.AnyArg(), 1, "u-bea").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// every prior confirmation goes back to pending
	mock.ExpectExec(`SET status = 'pending', decided_at = NULL`).
		WithArgs("m-1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	// and the proposer is the only one confirmed on the new score
	mock.ExpectExec(`source = 'proposal'`).
		WithArgs("m-1", "u-bea", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("u-bea", "match", "m-1", "score_proposed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewMatchRepo(db, RatingParams{ProvisionalMatches: 10, ProvisionalCap: 20})
	res, err := repo.Confirm(context.Background(), match.ConfirmInput{
		MatchID:      "m-1",
		UserID:       "u-bea",
		Proposed:     &counter,
		MaxProposals: 3,
	})

	require.NoError(t, err)
	assert.True(t, res.ProposalAccepted)
	assert.Equal(t, 1, res.ConfirmedCount)
	assert.Equal(t, 1, res.TeamsConfirmed)
	assert.Equal(t, "pending_confirm", res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmProposalLimitRejectsFurtherCounters(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()

	counter := score.Score{Sets: []score.Set{{T1: 6, T2: 0}, {T1: 6, T2: 1}}}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM matches WHERE id = \$1 FOR UPDATE`).
		WithArgs("m-1").
		WillReturnRows(pendingMatchRow(now, 3, nil, nil))
	mock.ExpectQuery(`SELECT status FROM match_confirmations`).
		WithArgs("m-1", "u-bea").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectQuery(`SELECT score_json FROM match_scores`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"score_json"}).
			AddRow([]byte(`{"sets":[{"t1":6,"t2":3},{"t1":6,"t2":4}]}`)))
	mock.ExpectRollback()

	repo := NewMatchRepo(db, RatingParams{ProvisionalMatches: 10, ProvisionalCap: 20})
	_, err := repo.Confirm(context.Background(), match.ConfirmInput{
		MatchID:      "m-1",
		UserID:       "u-bea",
		Proposed:     &counter,
		MaxProposals: 3,
	})

	assert.ErrorIs(t, err, match.ErrProposalLimit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmSecondTeamRatifiesOpenProposal(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	proposed := []byte(`{"sets":[{"t1":6,"t2":3},{"t1":3,"t2":6},{"t1":7,"t2":5}]}`)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM matches WHERE id = \$1 FOR UPDATE`).
		WithArgs("m-1").
		WillReturnRows(pendingMatchRow(now, 1, proposed, 1))
	mock.ExpectQuery(`SELECT status FROM match_confirmations`).
		WithArgs("m-1", "u-cruz").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`source = COALESCE\(\$4, 'app'\)`).
		WithArgs("m-1", "u-cruz", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`count\(DISTINCT mp\.team_no\)`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "teams"}).AddRow(2, 2))
	// the open proposal becomes the canonical score before verification
	mock.ExpectExec(`UPDATE match_scores\s+SET score_json = m\.proposed_score_json`).
		WithArgs("m-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'verified'`).
		WithArgs("m-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// rating lock sees rank_processed_at already set, so the rating and
	// analytics steps are skipped entirely
	mock.ExpectQuery(`SELECT ladder_code, category_id, status, has_dispute`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"ladder_code", "category_id", "status", "has_dispute", "rank_processed_at", "anti_farming_weight",
		}).AddRow("HM", "cat-1", "verified", false, now, 1.0))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("u-cruz", "match", "m-1", "verified", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewMatchRepo(db, RatingParams{ProvisionalMatches: 10, ProvisionalCap: 20})
	res, err := repo.Confirm(context.Background(), match.ConfirmInput{
		MatchID:      "m-1",
		UserID:       "u-cruz",
		MaxProposals: 3,
	})

	require.NoError(t, err)
	assert.Equal(t, "verified", res.Status)
	assert.Equal(t, 2, res.TeamsConfirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRatingZeroSumDeltas(t *testing.T) {
	db, mock := setupTestDB(t)
	params := RatingParams{ProvisionalMatches: 10, ProvisionalCap: 20}

	sc := score.Score{Sets: []score.Set{{T1: 6, T2: 3}, {T1: 6, T2: 4}}}
	k := elo.EffectiveK([]int{12, 12, 12, 12})
	weight := score.Extract(sc).MovWeight()
	delta := elo.TeamDelta(k, weight, elo.TeamRating(1200, 1200), elo.TeamRating(1200, 1200), true)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ladder_code, category_id, status, has_dispute`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"ladder_code", "category_id", "status", "has_dispute", "rank_processed_at", "anti_farming_weight",
		}).AddRow("HM", "cat-1", "verified", false, nil, 1.0))
	mock.ExpectQuery(`SELECT score_json, winner_team_no FROM match_scores`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"score_json", "winner_team_no"}).
			AddRow(score.Marshal(sc), 1))
	mock.ExpectQuery(`SELECT user_id, team_no FROM match_participants`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "team_no"}).
			AddRow("u1", 1).AddRow("u2", 1).AddRow("u3", 2).AddRow("u4", 2))
	mock.ExpectQuery(`FROM user_ladder_states\s+WHERE ladder_code = \$1 AND user_id = ANY\(\$2\)`).
		WithArgs("HM", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "rating", "verified_matches"}).
			AddRow("u1", 1200, 12).AddRow("u2", 1200, 12).
			AddRow("u3", 1200, 12).AddRow("u4", 1200, 12))
	for _, p := range []struct {
		userID string
		delta  int
	}{
		{"u1", delta}, {"u2", delta}, {"u3", -delta}, {"u4", -delta},
	} {
		mock.ExpectExec(`UPDATE user_ladder_states\s+SET rating = \$3`).
			WithArgs(p.userID, "HM", 1200+p.delta, 13, false).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO rating_events`).
			WithArgs(sqlmock.AnyArg(), "m-1", "HM", "cat-1", p.userID,
				1200, 1200+p.delta, p.delta, k, weight).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(`UPDATE matches SET rank_processed_at = now\(\)`).
		WithArgs("m-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(nil, "match", "m-1", "ranking/applied", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	out, err := applyRatingTx(context.Background(), tx, "m-1", params)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NotNil(t, out)
	require.Len(t, out.events, 4)
	sum := 0
	for _, ev := range out.events {
		sum += ev.Delta
	}
	assert.Zero(t, sum)
	assert.Equal(t, delta, out.events["u1"].Delta)
	assert.Equal(t, -delta, out.events["u3"].Delta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRatingSingleShot(t *testing.T) {
	cols := []string{"ladder_code", "category_id", "status", "has_dispute", "rank_processed_at", "anti_farming_weight"}
	now := time.Now().UTC()

	t.Run("already processed", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT ladder_code, category_id, status, has_dispute`).
			WithArgs("m-1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("HM", "cat-1", "verified", false, now, 1.0))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		out, err := applyRatingTx(context.Background(), tx, "m-1", RatingParams{ProvisionalMatches: 10, ProvisionalCap: 20})
		require.NoError(t, tx.Rollback())

		assert.NoError(t, err)
		assert.Nil(t, out)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("frozen by dispute", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT ladder_code, category_id, status, has_dispute`).
			WithArgs("m-1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("HM", "cat-1", "verified", true, nil, 1.0))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		out, err := applyRatingTx(context.Background(), tx, "m-1", RatingParams{ProvisionalMatches: 10, ProvisionalCap: 20})
		require.NoError(t, tx.Rollback())

		assert.NoError(t, err)
		assert.Nil(t, out)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestApplyAnalyticsSkipsAlreadyAppliedRows(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ladder_code, played_at FROM matches`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"ladder_code", "played_at"}).AddRow("HM", now))
	mock.ExpectQuery(`SELECT score_json, winner_team_no FROM match_scores`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"score_json", "winner_team_no"}).
			AddRow([]byte(`{"sets":[{"t1":6,"t2":3},{"t1":6,"t2":4}]}`), 1))
	mock.ExpectQuery(`SELECT user_id, team_no FROM match_participants`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "team_no"}).
			AddRow("u1", 1).AddRow("u2", 1).AddRow("u3", 2).AddRow("u4", 2))
	mock.ExpectQuery(`SELECT user_id, old_rating, new_rating, delta FROM rating_events`).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "old_rating", "new_rating", "delta"}).
			AddRow("u1", 1200, 1212, 12).AddRow("u2", 1200, 1212, 12).
			AddRow("u3", 1200, 1188, -12).AddRow("u4", 1200, 1188, -12))
	// zero rows affected on every insert: the match was already projected,
	// so no per-user state work may follow
	for range []int{0, 1, 2, 3} {
		mock.ExpectExec(`INSERT INTO user_analytics_match_applied`).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	err = applyAnalyticsTx(context.Background(), tx, "m-1", true)
	require.NoError(t, tx.Commit())

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
