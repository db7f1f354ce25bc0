package settings

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"sync"
)

// Keys of persisted runtime settings.
const (
	KeyTranscriptionProvider = "transcription_provider"
)

// Source reads persisted settings. ok is false when the key has no row.
type Source interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Writer persists settings.
type Writer interface {
	Put(ctx context.Context, key, value string) error
}

// Resolver looks a setting up on every call: a persisted row wins, otherwise the
// environment variable, otherwise the default. Nothing is cached, so operators can
// switch values without restarting the process.
type Resolver struct {
	source Source
	getenv func(string) string
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source, getenv: os.Getenv}
}

// Lookup returns the effective value for key. A failing source degrades to the env value;
// the source error is returned alongside so callers can log it.
func (r *Resolver) Lookup(ctx context.Context, key, envKey, def string) (string, error) {
	var srcErr error
	if r.source != nil {
		v, ok, err := r.source.Get(ctx, key)
		switch {
		case err != nil:
			srcErr = err
		case ok && strings.TrimSpace(v) != "":
			return strings.TrimSpace(v), nil
		}
	}
	if envKey != "" {
		if v := strings.TrimSpace(r.getenv(envKey)); v != "" {
			return v, srcErr
		}
	}
	return def, srcErr
}

// PostgresSource reads the settings table.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `SELECT value FROM settings WHERE key = $1`
	var v string
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// Put upserts key. Readers see the new value on their next Lookup.
func (s *PostgresSource) Put(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	_, err := s.db.ExecContext(ctx, q, key, value)
	return err
}

// MemorySource is a map-backed Source for tests.
type MemorySource struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemorySource() *MemorySource {
	return &MemorySource{values: map[string]string{}}
}

func (s *MemorySource) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemorySource) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemorySource) Put(_ context.Context, key, value string) error {
	s.Set(key, value)
	return nil
}
