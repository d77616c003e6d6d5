package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cmpc-libros/apiserver/types"
)

// AuditRepository appends and reads audit log entries. Entries are
// append-only; the application never updates or deletes them.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends one audit entry.
func (r *AuditRepository) Insert(ctx context.Context, entry types.AuditEntry) error {
	params, err := json.Marshal(entry.Params)
	if err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO audit_logs (route, method, status_code, username, ip_address, user_agent, action, params, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.db.ExecContext(
		ctx,
		query,
		entry.Route,
		entry.Method,
		entry.StatusCode,
		entry.Username,
		entry.IPAddress,
		entry.UserAgent,
		entry.Action,
		params,
		entry.UserID,
		entry.CreatedAt,
	)
	return err
}

// List returns recent audit entries, newest first.
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]types.AuditEntry, error) {
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
		SELECT id, route, method, status_code, username, ip_address, user_agent, action, params, user_id, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.AuditEntry, 0, limit)
	for rows.Next() {
		var entry types.AuditEntry
		var paramsJSON []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.Route,
			&entry.Method,
			&entry.StatusCode,
			&entry.Username,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.Action,
			&paramsJSON,
			&entry.UserID,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(paramsJSON, &entry.Params)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
