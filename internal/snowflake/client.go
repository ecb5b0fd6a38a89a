// Package snowflake ships rating events and ladder-state snapshots to
// the analytics warehouse. The export is additive and idempotent: rows
// are keyed by their source ids, so replays overwrite rather than grow.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/rivio/ranking-server/internal/config"
	"github.com/rivio/ranking-server/internal/repository/postgres"
)

// Client provides access to the Snowflake warehouse.
type Client struct {
	config config.WarehouseConfig
	db     *sql.DB
}

// NewClient opens the warehouse connection.
// DSN format: user:password@account/database/schema?warehouse=xxx
func NewClient(cfg config.WarehouseConfig) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{config: cfg, db: db}, nil
}

// Close closes the warehouse connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the warehouse connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// InsertRatingEvents appends rating changes, skipping ids already
// shipped in a previous run.
func (c *Client) InsertRatingEvents(ctx context.Context, events []postgres.WarehouseRatingEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	inserted := 0
	for _, ev := range events {
		res, err := c.db.ExecContext(ctx, `
			INSERT INTO RATING_EVENTS (ID, MATCH_ID, USER_ID, LADDER_CODE, OLD_RATING, NEW_RATING, DELTA, K_FACTOR, WEIGHT, CREATED_AT)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM RATING_EVENTS WHERE ID = ?)
		`, ev.ID, ev.MatchID, ev.UserID, ev.LadderCode, ev.OldRating, ev.NewRating,
			ev.Delta, ev.KFactor, ev.Weight, ev.CreatedAt, ev.ID)
		if err != nil {
			return inserted, fmt.Errorf("insert rating event %s: %w", ev.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// UpsertLadderStates merges current rating snapshots by (user, ladder).
func (c *Client) UpsertLadderStates(ctx context.Context, states []postgres.WarehouseLadderState) (int, error) {
	if len(states) == 0 {
		return 0, nil
	}
	for _, st := range states {
		_, err := c.db.ExecContext(ctx, `
			MERGE INTO LADDER_STATES t
			USING (SELECT ? AS USER_ID, ? AS LADDER_CODE, ? AS CATEGORY_ID, ? AS RATING,
			              ? AS VERIFIED_MATCHES, ? AS IS_PROVISIONAL, ? AS UPDATED_AT) s
			ON t.USER_ID = s.USER_ID AND t.LADDER_CODE = s.LADDER_CODE
			WHEN MATCHED THEN UPDATE SET
				CATEGORY_ID = s.CATEGORY_ID, RATING = s.RATING,
				VERIFIED_MATCHES = s.VERIFIED_MATCHES, IS_PROVISIONAL = s.IS_PROVISIONAL,
				UPDATED_AT = s.UPDATED_AT
			WHEN NOT MATCHED THEN INSERT
				(USER_ID, LADDER_CODE, CATEGORY_ID, RATING, VERIFIED_MATCHES, IS_PROVISIONAL, UPDATED_AT)
				VALUES (s.USER_ID, s.LADDER_CODE, s.CATEGORY_ID, s.RATING, s.VERIFIED_MATCHES, s.IS_PROVISIONAL, s.UPDATED_AT)
		`, st.UserID, st.LadderCode, st.CategoryID, st.Rating,
			st.VerifiedMatches, st.IsProvisional, st.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("merge ladder state %s/%s: %w", st.UserID, st.LadderCode, err)
		}
	}
	return len(states), nil
}

// LatestEventTimestamp returns the newest shipped rating event time,
// the export watermark on a cold start.
func (c *Client) LatestEventTimestamp(ctx context.Context) (time.Time, error) {
	var ts sql.NullTime
	err := c.db.QueryRowContext(ctx, `SELECT MAX(CREATED_AT) FROM RATING_EVENTS`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("load export watermark: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}
