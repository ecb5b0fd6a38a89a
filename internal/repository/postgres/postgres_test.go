package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/service/ranking"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "uq_user_profiles_alias"}

	assert.True(t, uniqueViolation(dup, "alias"))
	assert.True(t, uniqueViolation(dup, ""))
	assert.False(t, uniqueViolation(dup, "identities"))
	assert.False(t, uniqueViolation(&pq.Error{Code: "23503"}, ""))
	assert.False(t, uniqueViolation(errors.New("plain"), ""))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := withTx(context.Background(), db, func(tx *sql.Tx) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboardQueryShape(t *testing.T) {
	cols := []string{"user_id", "alias", "rating", "verified_matches", "is_provisional"}

	t.Run("ladder and category only", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectQuery(`FROM user_ladder_states`).
			WithArgs("HM", "cat-1", 200).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow("u1", "player_one", 1240, 18, false).
				AddRow("u2", "player_two", 1180, 4, true))

		rows, err := NewRankingRepo(db).Leaderboard(context.Background(),
			ranking.Query{LadderCode: "HM", CategoryID: "cat-1"}, 200)

		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "player_one", rows[0].Alias)
		assert.Equal(t, 1240, rows[0].Rating)
		assert.True(t, rows[1].IsProvisional)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("country and city append positional args in order", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectQuery(`lower\(up\.city\) = lower\(\$4\)`).
			WithArgs("MX", "cat-2", "CO", "Neiva", 50).
			WillReturnRows(sqlmock.NewRows(cols))

		rows, err := NewRankingRepo(db).Leaderboard(context.Background(),
			ranking.Query{LadderCode: "MX", CategoryID: "cat-2", Country: "CO", City: "Neiva"}, 50)

		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSupportRepoNoRowSemantics(t *testing.T) {
	t.Run("last ticket absent means nil not error", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectQuery(`FROM support_tickets`).
			WithArgs("u1").
			WillReturnError(sql.ErrNoRows)

		at, err := NewSupportRepo(db).LastTicketAt(context.Background(), "u1")

		require.NoError(t, err)
		assert.Nil(t, at)
	})

	t.Run("missing entitlement row reads as free", func(t *testing.T) {
		db, mock := setupTestDB(t)
		mock.ExpectQuery(`FROM user_entitlements`).
			WithArgs("u1").
			WillReturnError(sql.ErrNoRows)

		plan, err := NewSupportRepo(db).EntitlementPlan(context.Background(), "u1")

		require.NoError(t, err)
		assert.Equal(t, domain.PlanFree, plan)
	})
}

func TestCreateTicketWritesAuditInSameTx(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO support_tickets`).
		WithArgs(sqlmock.AnyArg(), "u1", domain.TicketBilling, "Charged twice", "I was billed twice this month").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "category", "subject", "message", "status", "created_at", "updated_at",
		}).AddRow("t1", "u1", "billing", "Charged twice", "I was billed twice this month", "open", now, now))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("u1", "support_ticket", "t1", "created", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ticket, err := NewSupportRepo(db).CreateTicket(context.Background(),
		"u1", domain.TicketBilling, "Charged twice", "I was billed twice this month")

	require.NoError(t, err)
	assert.Equal(t, "t1", ticket.ID)
	assert.Equal(t, domain.TicketOpen, ticket.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureEntitlementInsertsThenLoads(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now()

	mock.ExpectExec(`INSERT INTO user_entitlements`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM user_entitlements`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "plan_code", "ads_enabled", "activated_at", "expires_at", "created_at", "updated_at",
		}).AddRow("u1", "FREE", true, now, nil, now, now))

	e, err := NewEntitlementRepo(db).Ensure(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, e.PlanCode)
	assert.True(t, e.AdsEnabled)
	assert.Nil(t, e.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveClubs(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectQuery(`FROM clubs WHERE is_active`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "city", "is_active"}).
			AddRow("c1", "Club Campestre", "Neiva", true).
			AddRow("c2", "Padel Center Norte", "Bogota", true))

	clubs, err := NewCatalogRepo(db).ActiveClubs(context.Background())

	require.NoError(t, err)
	require.Len(t, clubs, 2)
	assert.Equal(t, "Club Campestre", clubs[0].Name)
	assert.Equal(t, "Bogota", clubs[1].City)
	assert.NoError(t, mock.ExpectationsWereMet())
}
