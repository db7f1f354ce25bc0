package calls

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shopcalls/pkg/utils"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables used by the pipeline if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	err := utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, schemaSQL)
		return err
	})
	if err != nil {
		return fmt.Errorf("calls: ensure schema: %w", err)
	}
	return nil
}

// PostgresRepo implements Store on Postgres through database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const callColumns = `
id, provider_call_id, provider_recording_id, provider_session_id, direction,
customer_phone, customer_name, duration_seconds, recording_status,
call_start_time, call_end_time, internal_user_id, shop_id,
transcript_text, transcript_metadata, is_sales_call, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallRecord, error) {
	var (
		c                      CallRecord
		recordingID, sessionID sql.NullString
		internalUserID, shopID sql.NullString
	)
	if err := row.Scan(
		&c.ID,
		&c.ProviderCallID,
		&recordingID,
		&sessionID,
		&c.Direction,
		&c.CustomerPhone,
		&c.CustomerName,
		&c.DurationSeconds,
		&c.RecordingStatus,
		&c.CallStartTime,
		&c.CallEndTime,
		&internalUserID,
		&shopID,
		&c.TranscriptText,
		&c.TranscriptMetadata,
		&c.IsSalesCall,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return CallRecord{}, err
	}
	c.ProviderRecordingID = recordingID.String
	c.ProviderSessionID = sessionID.String
	c.InternalUserID = internalUserID.String
	c.ShopID = shopID.String
	return c, nil
}

func (r *PostgresRepo) queryCalls(ctx context.Context, q string, args ...any) ([]CallRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) GetCallsNeedingTranscription(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		return nil, ErrInvalidArgument
	}
	q := `SELECT ` + callColumns + `
FROM call_recordings
WHERE transcript_text IS NULL
  AND (
    transcript_metadata IS NULL
    OR (
      COALESCE((transcript_metadata->>'failed')::boolean, false)
      AND COALESCE((transcript_metadata->>'attempts')::int, 0) < $2
    )
  )
ORDER BY call_start_time DESC
LIMIT $1
`
	return r.queryCalls(ctx, q, limit, MaxTranscriptionAttempts)
}

func (r *PostgresRepo) CreateCallRecording(ctx context.Context, rec CallRecord) (bool, error) {
	if rec.ProviderCallID == "" {
		return false, ErrInvalidArgument
	}
	now := r.clock().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	// The unique index on provider_call_id makes concurrent syncs safe across processes.
	const q = `
INSERT INTO call_recordings (
  id, provider_call_id, provider_recording_id, provider_session_id, direction,
  customer_phone, customer_name, duration_seconds, recording_status,
  call_start_time, call_end_time, internal_user_id, shop_id, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (provider_call_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.ProviderCallID,
		nullString(rec.ProviderRecordingID),
		nullString(rec.ProviderSessionID),
		rec.Direction,
		rec.CustomerPhone,
		rec.CustomerName,
		rec.DurationSeconds,
		rec.RecordingStatus,
		rec.CallStartTime,
		rec.CallEndTime,
		nullString(rec.InternalUserID),
		nullString(rec.ShopID),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) UpdateCallRecording(ctx context.Context, id string, patch CallPatch) error {
	if id == "" {
		return ErrInvalidArgument
	}
	if patch.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if patch.TranscriptText != nil {
		add("transcript_text = $%d", *patch.TranscriptText)
	}
	if patch.TranscriptMetadata != nil {
		add("transcript_metadata = $%d::jsonb", *patch.TranscriptMetadata)
	}
	if patch.IsSalesCall != nil {
		add("is_sales_call = $%d", *patch.IsSalesCall)
	}
	if patch.ProviderSessionID != nil {
		add("provider_session_id = COALESCE(NULLIF(provider_session_id, ''), $%d)", *patch.ProviderSessionID)
	}
	add("updated_at = $%d", r.clock().UTC())
	args = append(args, id)

	q := fmt.Sprintf("UPDATE call_recordings SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) GetCallRecordingByProviderID(ctx context.Context, providerCallID string) (CallRecord, bool, error) {
	q := `SELECT ` + callColumns + ` FROM call_recordings WHERE provider_call_id = $1 LIMIT 1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, providerCallID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, false, nil
		}
		return CallRecord{}, false, err
	}
	return c, true, nil
}

func (r *PostgresRepo) GetCallRecording(ctx context.Context, id string) (CallRecord, error) {
	q := `SELECT ` + callColumns + ` FROM call_recordings WHERE id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return c, nil
}

// UpsertExtensionMapping attributes an extension to a user and optional shop.
// Existing calls keep their attribution; only later syncs use the new mapping.
func (r *PostgresRepo) UpsertExtensionMapping(ctx context.Context, m ExtensionMapping) error {
	if strings.TrimSpace(m.ExtensionID) == "" || strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: extension id and user id are required", ErrInvalidArgument)
	}
	const q = `
INSERT INTO extension_mappings (extension_id, user_id, shop_id)
VALUES ($1, $2, $3)
ON CONFLICT (extension_id) DO UPDATE SET user_id = EXCLUDED.user_id, shop_id = EXCLUDED.shop_id
`
	_, err := r.db.ExecContext(ctx, q, m.ExtensionID, m.UserID, nullString(m.ShopID))
	return err
}

func (r *PostgresRepo) GetExtensionMapping(ctx context.Context, extensionID string) (ExtensionMapping, bool, error) {
	const q = `
SELECT extension_id, user_id, shop_id
FROM extension_mappings
WHERE extension_id = $1
`
	var (
		m      ExtensionMapping
		shopID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, extensionID).Scan(&m.ExtensionID, &m.UserID, &shopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExtensionMapping{}, false, nil
		}
		return ExtensionMapping{}, false, err
	}
	m.ShopID = shopID.String
	return m, true, nil
}

func (r *PostgresRepo) ListCallsMissingSessionID(ctx context.Context) ([]CallRecord, error) {
	q := `SELECT ` + callColumns + `
FROM call_recordings
WHERE provider_session_id IS NULL OR provider_session_id = ''
ORDER BY call_start_time DESC
`
	return r.queryCalls(ctx, q)
}

func (r *PostgresRepo) CountCallsWithSessionID(ctx context.Context) (int, error) {
	const q = `SELECT count(*) FROM call_recordings WHERE provider_session_id IS NOT NULL AND provider_session_id <> ''`
	var n int
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) ListCalls(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	if !to.After(from) {
		return nil, ErrInvalidArgument
	}
	q := `SELECT ` + callColumns + `
FROM call_recordings
WHERE call_start_time >= $1 AND call_start_time < $2
ORDER BY call_start_time ASC
`
	return r.queryCalls(ctx, q, from, to)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
