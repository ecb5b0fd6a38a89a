// Package audit appends structured audit events. Every non-trivial business
// decision writes one row, inside the same transaction as the action it
// describes, so the log never references state that was rolled back.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
)

// Execer is satisfied by both *sql.DB and *sql.Tx so appends can join an
// open transaction or run standalone.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Append writes one audit row. actorUserID may be empty for system actions.
// data is marshalled to JSON; a nil map writes an empty object.
func Append(ctx context.Context, db Execer, actorUserID, entityType, entityID, action string, data map[string]interface{}) error {
	if data == nil {
		data = map[string]interface{}{}
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal audit data: %w", err)
	}

	var actor interface{}
	if actorUserID != "" {
		actor = actorUserID
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_log (actor_user_id, entity_type, entity_id, action, data)
		VALUES ($1, $2, $3, $4, $5)
	`, actor, entityType, entityID, action, blob)
	if err != nil {
		return fmt.Errorf("append audit %s/%s: %w", entityType, action, err)
	}
	return nil
}

// BestEffort appends and logs instead of failing. Use on paths where a lost
// audit row must not abort the business transaction (e.g. logout).
func BestEffort(ctx context.Context, db Execer, actorUserID, entityType, entityID, action string, data map[string]interface{}) {
	if err := Append(ctx, db, actorUserID, entityType, entityID, action, data); err != nil {
		log.Printf("[Audit] append failed (%s/%s): %v", entityType, action, err)
	}
}
