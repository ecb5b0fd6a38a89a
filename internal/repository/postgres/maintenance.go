package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rivio/ranking-server/internal/audit"
	"github.com/rivio/ranking-server/internal/domain"
)

// MaintenanceRepo serves the background workers: auth artifact retention,
// scheduled account deletions, and warehouse export reads.
type MaintenanceRepo struct{ db *sql.DB }

// NewMaintenanceRepo creates a Postgres-backed maintenance repository.
func NewMaintenanceRepo(db *sql.DB) *MaintenanceRepo { return &MaintenanceRepo{db: db} }

// CleanupStats counts rows removed by one retention sweep.
type CleanupStats struct {
	OTPs           int64
	LoginAttempts  int64
	ContactChanges int64
	Sessions       int64
}

// CleanupAuthArtifacts removes settled auth rows older than the given
// cutoffs. Live sessions and open contact changes are never touched.
func (r *MaintenanceRepo) CleanupAuthArtifacts(ctx context.Context, otpBefore, attemptsBefore, contactBefore time.Time) (CleanupStats, error) {
	var stats CleanupStats

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_otps
		WHERE created_at < $1 AND (consumed_at IS NOT NULL OR expires_at < now())
	`, otpBefore)
	if err != nil {
		return stats, fmt.Errorf("cleanup otps: %w", err)
	}
	stats.OTPs, _ = res.RowsAffected()

	res, err = r.db.ExecContext(ctx, `
		DELETE FROM auth_login_attempts WHERE created_at < $1
	`, attemptsBefore)
	if err != nil {
		return stats, fmt.Errorf("cleanup login attempts: %w", err)
	}
	stats.LoginAttempts, _ = res.RowsAffected()

	res, err = r.db.ExecContext(ctx, `
		DELETE FROM contact_change_requests
		WHERE created_at < $1 AND (consumed_at IS NOT NULL OR expires_at < now())
	`, contactBefore)
	if err != nil {
		return stats, fmt.Errorf("cleanup contact changes: %w", err)
	}
	stats.ContactChanges, _ = res.RowsAffected()

	res, err = r.db.ExecContext(ctx, `
		DELETE FROM auth_sessions
		WHERE created_at < $1 AND (revoked_at IS NOT NULL OR expires_at < now())
	`, attemptsBefore)
	if err != nil {
		return stats, fmt.Errorf("cleanup sessions: %w", err)
	}
	stats.Sessions, _ = res.RowsAffected()

	return stats, nil
}

// DueDeletionRequests lists open requests whose grace period has elapsed.
func (r *MaintenanceRepo) DueDeletionRequests(ctx context.Context, limit int) ([]domain.AccountDeletionRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, reason, requested_at, scheduled_for, cancelled_at, executed_at, created_by
		FROM account_deletion_requests
		WHERE cancelled_at IS NULL AND executed_at IS NULL AND scheduled_for <= now()
		ORDER BY scheduled_for
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list due deletions: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountDeletionRequest
	for rows.Next() {
		var req domain.AccountDeletionRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.Reason, &req.RequestedAt, &req.ScheduledFor,
			&req.CancelledAt, &req.ExecutedAt, &req.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan deletion request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ExecuteDeletion anonymizes the account behind a due request. Match and
// rating history stay intact under the anonymized identity.
func (r *MaintenanceRepo) ExecuteDeletion(ctx context.Context, requestID string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var (
			userID    string
			cancelled *time.Time
			executed  *time.Time
		)
		err := tx.QueryRowContext(ctx, `
			SELECT user_id, cancelled_at, executed_at
			FROM account_deletion_requests
			WHERE id = $1
			FOR UPDATE
		`, requestID).Scan(&userID, &cancelled, &executed)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock deletion request: %w", err)
		}
		if cancelled != nil || executed != nil {
			return nil
		}

		anonAlias := "deleted_" + strings.ReplaceAll(userID, "-", "")

		if _, err := tx.ExecContext(ctx, `
			UPDATE users
			SET email = NULL, phone_e164 = NULL, status = 'deleted', updated_at = now()
			WHERE id = $1
		`, userID); err != nil {
			return fmt.Errorf("anonymize user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM auth_credentials WHERE user_id = $1
		`, userID); err != nil {
			return fmt.Errorf("delete credentials: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM auth_identities WHERE user_id = $1
		`, userID); err != nil {
			return fmt.Errorf("delete identities: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE auth_sessions
			SET revoked_at = now(), revoked_reason = 'account_deleted'
			WHERE user_id = $1 AND revoked_at IS NULL
		`, userID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_profiles
			SET alias = $2, is_public = false, country = 'ZZ', city = NULL,
			    first_name = NULL, last_name = NULL, birthdate = NULL,
			    avatar_mode = 'preset', avatar_preset_key = 'default_1', avatar_url = NULL,
			    updated_at = now()
			WHERE user_id = $1
		`, userID, anonAlias); err != nil {
			return fmt.Errorf("anonymize profile: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE account_deletion_requests SET executed_at = now() WHERE id = $1
		`, requestID); err != nil {
			return fmt.Errorf("mark executed: %w", err)
		}

		return audit.Append(ctx, tx, "", "user", userID, "deletion_executed", nil)
	})
}

// WarehouseRatingEvent is one rating change flattened for export.
type WarehouseRatingEvent struct {
	ID         string
	MatchID    string
	UserID     string
	LadderCode string
	OldRating  int
	NewRating  int
	Delta      int
	KFactor    int
	Weight     float64
	CreatedAt  time.Time
}

// RatingEventsSince lists rating events created after the watermark,
// oldest first, for the warehouse export worker.
func (r *MaintenanceRepo) RatingEventsSince(ctx context.Context, since time.Time, limit int) ([]WarehouseRatingEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_id, user_id, ladder_code, old_rating, new_rating, delta, k_factor, weight, created_at
		FROM rating_events
		WHERE created_at > $1
		ORDER BY created_at, id
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list rating events: %w", err)
	}
	defer rows.Close()

	var out []WarehouseRatingEvent
	for rows.Next() {
		var ev WarehouseRatingEvent
		if err := rows.Scan(&ev.ID, &ev.MatchID, &ev.UserID, &ev.LadderCode,
			&ev.OldRating, &ev.NewRating, &ev.Delta, &ev.KFactor, &ev.Weight, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// WarehouseLadderState is one current rating snapshot for export.
type WarehouseLadderState struct {
	UserID          string
	LadderCode      string
	CategoryID      string
	Rating          int
	VerifiedMatches int
	IsProvisional   bool
	UpdatedAt       time.Time
}

// LadderStatesChangedSince lists ladder states updated after the
// watermark, oldest change first.
func (r *MaintenanceRepo) LadderStatesChangedSince(ctx context.Context, since time.Time, limit int) ([]WarehouseLadderState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, ladder_code, category_id, rating, verified_matches, is_provisional, updated_at
		FROM user_ladder_states
		WHERE updated_at > $1
		ORDER BY updated_at, user_id
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list ladder states: %w", err)
	}
	defer rows.Close()

	var out []WarehouseLadderState
	for rows.Next() {
		var st WarehouseLadderState
		if err := rows.Scan(&st.UserID, &st.LadderCode, &st.CategoryID,
			&st.Rating, &st.VerifiedMatches, &st.IsProvisional, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ladder state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
