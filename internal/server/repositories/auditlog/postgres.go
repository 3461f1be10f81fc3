// Package auditlog persists audit entries to PostgreSQL. It satisfies
// audit.Sink so the in-memory log can mirror every entry durably.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/cytoguard/internal/audit"
	"github.com/dmitrijs2005/cytoguard/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e audit.Entry) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}

	query :=
		`INSERT INTO audit_log (id, ts, action, session_id, details)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err = r.db.ExecContext(ctx, query, e.ID, e.Timestamp, e.Action, e.SessionID, raw)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// ListBySession returns a session's entries oldest first.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]audit.Entry, error) {
	query :=
		`SELECT id, ts, action, session_id, details FROM audit_log
		 WHERE session_id = $1
		 ORDER BY ts, id
		 `

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e   audit.Entry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.SessionID, &raw); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return out, nil
}
