package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rivio/ranking-server/internal/audit"
	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/service/profile"
)

// ProfileRepo implements profile.Repository against PostgreSQL.
type ProfileRepo struct{ db *sql.DB }

// NewProfileRepo creates a Postgres-backed profile repository.
func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

func (r *ProfileRepo) UserByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, phone_e164, email, status, created_at, last_login_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Phone, &u.Email, &u.Status, &u.CreatedAt, &u.LastLoginAt)
	if err == sql.ErrNoRows {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by id: %w", err)
	}
	return u, nil
}

func scanProfile(row *sql.Row) (*domain.UserProfile, error) {
	p := &domain.UserProfile{}
	err := row.Scan(
		&p.UserID, &p.Alias, &p.Gender, &p.IsPublic, &p.Country, &p.City,
		&p.Handedness, &p.PreferredSide, &p.Birthdate, &p.FirstName, &p.LastName,
		&p.AvatarMode, &p.AvatarPresetKey, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return p, nil
}

const profileColumns = `
	user_id, alias, gender, is_public, country, city,
	handedness, preferred_side, birthdate, first_name, last_name,
	avatar_mode, avatar_preset_key, avatar_url, created_at, updated_at`

func (r *ProfileRepo) ProfileByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return scanProfile(r.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM user_profiles WHERE user_id = $1
	`, userID))
}

func (r *ProfileRepo) AliasInUse(ctx context.Context, alias, excludeUserID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_profiles
			WHERE lower(alias) = lower($1) AND user_id <> $2
		)
	`, alias, excludeUserID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("alias in use: %w", err)
	}
	return exists, nil
}

func (r *ProfileRepo) CountUserMatches(ctx context.Context, userID, ladderCode string) (int, error) {
	q := `
		SELECT count(*)
		FROM match_participants mp
		JOIN matches m ON m.id = mp.match_id
		WHERE mp.user_id = $1`
	args := []interface{}{userID}
	if ladderCode != "" {
		q += ` AND m.ladder_code = $2`
		args = append(args, ladderCode)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count user matches: %w", err)
	}
	return n, nil
}

func (r *ProfileRepo) ApplyProfileUpdate(ctx context.Context, userID string, u profile.FieldUpdate, ladders []profile.LadderUpsert) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		sets := []string{"updated_at = now()"}
		args := []interface{}{userID}
		add := func(col string, val interface{}) {
			args = append(args, val)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
		changed := map[string]interface{}{}
		if u.Alias != nil {
			add("alias", *u.Alias)
			changed["alias"] = *u.Alias
		}
		if u.Gender != nil {
			add("gender", *u.Gender)
			changed["gender"] = *u.Gender
		}
		if u.IsPublic != nil {
			add("is_public", *u.IsPublic)
			changed["is_public"] = *u.IsPublic
		}
		if u.Country != nil {
			add("country", *u.Country)
			changed["country"] = *u.Country
		}
		if u.City != nil {
			add("city", *u.City)
			changed["city"] = *u.City
		}
		if u.Handedness != nil {
			add("handedness", *u.Handedness)
			changed["handedness"] = *u.Handedness
		}
		if u.PreferredSide != nil {
			add("preferred_side", *u.PreferredSide)
			changed["preferred_side"] = *u.PreferredSide
		}
		if u.Birthdate != nil {
			add("birthdate", *u.Birthdate)
			changed["birthdate"] = u.Birthdate.Format("2006-01-02")
		}
		if u.FirstName != nil {
			add("first_name", *u.FirstName)
			changed["first_name"] = *u.FirstName
		}
		if u.LastName != nil {
			add("last_name", *u.LastName)
			changed["last_name"] = *u.LastName
		}

		if len(sets) > 1 {
			q := fmt.Sprintf(`UPDATE user_profiles SET %s WHERE user_id = $1`, strings.Join(sets, ", "))
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				if uniqueViolation(err, "user_profiles") {
					return profile.ErrAliasTaken
				}
				return fmt.Errorf("update profile: %w", err)
			}
		}

		for _, lu := range ladders {
			var (
				currentCategory string
				verifiedMatches int
			)
			err := tx.QueryRowContext(ctx, `
				SELECT category_id, verified_matches
				FROM user_ladder_states
				WHERE user_id = $1 AND ladder_code = $2
				FOR UPDATE
			`, userID, lu.LadderCode).Scan(&currentCategory, &verifiedMatches)
			switch {
			case err == sql.ErrNoRows:
				if _, ierr := tx.ExecContext(ctx, `
					INSERT INTO user_ladder_states (user_id, ladder_code, category_id)
					VALUES ($1, $2, $3)
				`, userID, lu.LadderCode, lu.CategoryID); ierr != nil {
					return fmt.Errorf("insert ladder state: %w", ierr)
				}
				changed["category_"+lu.LadderCode] = lu.CategoryID
			case err != nil:
				return fmt.Errorf("lock ladder state: %w", err)
			case currentCategory == lu.CategoryID:
				// no-op
			default:
				if verifiedMatches > 0 {
					return profile.ErrCategoryLocked
				}
				var played int
				if err := tx.QueryRowContext(ctx, `
					SELECT count(*)
					FROM match_participants mp
					JOIN matches m ON m.id = mp.match_id
					WHERE mp.user_id = $1 AND m.ladder_code = $2
				`, userID, lu.LadderCode).Scan(&played); err != nil {
					return fmt.Errorf("count ladder matches: %w", err)
				}
				if played > 0 {
					return profile.ErrCategoryLocked
				}
				if _, err := tx.ExecContext(ctx, `
					UPDATE user_ladder_states
					SET category_id = $3, updated_at = now()
					WHERE user_id = $1 AND ladder_code = $2
				`, userID, lu.LadderCode, lu.CategoryID); err != nil {
					return fmt.Errorf("update ladder state: %w", err)
				}
				changed["category_"+lu.LadderCode] = lu.CategoryID
			}
		}

		if len(changed) == 0 {
			return nil
		}
		return audit.Append(ctx, tx, userID, "user_profile", userID, "updated", changed)
	})
}

func (r *ProfileRepo) CategoryByCode(ctx context.Context, ladderCode, code string) (*domain.Category, error) {
	c := &domain.Category{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, ladder_code, code, name, sort_order
		FROM categories
		WHERE ladder_code = $1 AND code = $2
	`, ladderCode, code).Scan(&c.ID, &c.LadderCode, &c.Code, &c.Name, &c.SortOrder)
	if err == sql.ErrNoRows {
		return nil, profile.ErrInvalidCategory
	}
	if err != nil {
		return nil, fmt.Errorf("category by code: %w", err)
	}
	return c, nil
}

func (r *ProfileRepo) MxCode(ctx context.Context, gender, primaryCode string) (string, error) {
	var mx string
	err := r.db.QueryRowContext(ctx, `
		SELECT mx_code FROM mx_category_map
		WHERE gender = $1 AND primary_code = $2
	`, gender, primaryCode).Scan(&mx)
	if err == sql.ErrNoRows {
		return "", profile.ErrInvalidCategory
	}
	if err != nil {
		return "", fmt.Errorf("mx code: %w", err)
	}
	return mx, nil
}

func (r *ProfileRepo) LadderStates(ctx context.Context, userID string) ([]profile.LadderStateView, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.ladder_code, s.category_id, c.code, c.name,
		       s.rating, s.verified_matches, s.is_provisional, s.trust_score
		FROM user_ladder_states s
		JOIN categories c ON c.id = s.category_id
		WHERE s.user_id = $1
		ORDER BY s.ladder_code
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ladder states: %w", err)
	}
	defer rows.Close()

	var out []profile.LadderStateView
	for rows.Next() {
		var v profile.LadderStateView
		if err := rows.Scan(
			&v.LadderCode, &v.CategoryID, &v.CategoryCode, &v.CategoryName,
			&v.Rating, &v.VerifiedMatches, &v.IsProvisional, &v.TrustScore,
		); err != nil {
			return nil, fmt.Errorf("scan ladder state: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *ProfileRepo) HasVerifiedIdentity(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM auth_identities WHERE user_id = $1 AND is_verified = true
		)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has verified identity: %w", err)
	}
	return exists, nil
}

func (r *ProfileRepo) MyMatches(ctx context.Context, userID string, f profile.MatchFilter) ([]profile.MyMatchRow, error) {
	q := `
		SELECT m.id, m.ladder_code, c.code, m.club_id, cl.name,
		       m.played_at, m.status, m.confirmation_deadline,
		       m.confirmed_count, m.has_dispute, mp.team_no,
		       COALESCE(mc.status, 'pending')
		FROM match_participants mp
		JOIN matches m ON m.id = mp.match_id
		JOIN categories c ON c.id = m.category_id
		LEFT JOIN clubs cl ON cl.id = m.club_id
		LEFT JOIN match_confirmations mc ON mc.match_id = m.id AND mc.user_id = mp.user_id
		WHERE mp.user_id = $1`
	args := []interface{}{userID}
	if f.Ladder != "" {
		args = append(args, f.Ladder)
		q += fmt.Sprintf(" AND m.ladder_code = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND m.status = $%d", len(args))
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY m.played_at DESC, m.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("my matches: %w", err)
	}
	defer rows.Close()

	var out []profile.MyMatchRow
	for rows.Next() {
		var m profile.MyMatchRow
		if err := rows.Scan(
			&m.ID, &m.LadderCode, &m.CategoryCode, &m.ClubID, &m.ClubName,
			&m.PlayedAt, &m.Status, &m.ConfirmationDeadline,
			&m.ConfirmedCount, &m.HasDispute, &m.MyTeamNo, &m.MyConfirmation,
		); err != nil {
			return nil, fmt.Errorf("scan my match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ProfileRepo) SetAvatar(ctx context.Context, userID string, mode domain.AvatarMode, presetKey, url *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_profiles
		SET avatar_mode = $2, avatar_preset_key = $3, avatar_url = $4, updated_at = now()
		WHERE user_id = $1
	`, userID, mode, nullStr(presetKey), nullStr(url))
	if err != nil {
		return fmt.Errorf("set avatar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return profile.ErrNotFound
	}
	return nil
}

func (r *ProfileRepo) AvatarPresetByKey(ctx context.Context, key string) (*domain.AvatarPreset, error) {
	p := &domain.AvatarPreset{}
	err := r.db.QueryRowContext(ctx, `
		SELECT key, display_name, image_url, is_active, sort_order
		FROM avatar_presets
		WHERE key = $1 AND is_active = true
	`, key).Scan(&p.Key, &p.DisplayName, &p.ImageURL, &p.IsActive, &p.SortOrder)
	if err == sql.ErrNoRows {
		return nil, profile.ErrInvalidPreset
	}
	if err != nil {
		return nil, fmt.Errorf("avatar preset: %w", err)
	}
	return p, nil
}
