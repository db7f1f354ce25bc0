package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events. It never issues UPDATE or DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, actor, target, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	var meta any
	if len(e.Metadata) > 0 {
		meta = string(e.Metadata)
	}
	_, err := r.db.ExecContext(ctx, q, e.ID, string(e.Type), e.Actor, e.Target, e.Message, meta, e.CreatedAt)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Event, error) {
	const q = `
SELECT id, type, actor, target, message, metadata, created_at
FROM audit_events
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			typ  string
			meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &typ, &e.Actor, &e.Target, &e.Message, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		if meta.Valid {
			e.Metadata = []byte(meta.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
