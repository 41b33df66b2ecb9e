package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	pgGetQuery = "SELECT value FROM documents " +
		"WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2) LIMIT 1"
	pgPutQuery = "INSERT INTO documents (key, value, expires_at, updated_at) VALUES ($1, $2, $3, $4) " +
		"ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at"
	pgDeleteQuery = "DELETE FROM documents " +
		"WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)"
	pgKeysQuery = "SELECT key FROM documents " +
		"WHERE key LIKE $1 ESCAPE '\\' AND (expires_at IS NULL OR expires_at > $2) ORDER BY key"
	pgReapQuery = "DELETE FROM documents WHERE expires_at IS NOT NULL AND expires_at <= $1"
)

// PgStore keeps documents in the documents table created by the database
// migrations. Expired rows are invisible to reads and removed by Reap.
type PgStore struct {
	conn *sql.DB
	now  func() time.Time
}

func NewPgStore(conn *sql.DB) *PgStore {
	return &PgStore{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *PgStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.conn.QueryRowContext(ctx, pgGetQuery, key, s.now()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document %q: %w", key, err)
	}

	return value, nil
}

func (s *PgStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, pgPutQuery, key, value, expiresAt, now)
	if err != nil {
		return fmt.Errorf("upsert document %q: %w", key, err)
	}

	return nil
}

func (s *PgStore) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, pgDeleteQuery, key, s.now())
	if err != nil {
		return false, fmt.Errorf("delete document %q: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n > 0, nil
}

func (s *PgStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, pgKeysQuery, escapeLike(prefix)+"%", s.now())
	if err != nil {
		return nil, fmt.Errorf("list documents %q: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return keys, nil
}

// Reap deletes expired rows and returns how many were removed.
func (s *PgStore) Reap(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx, pgReapQuery, s.now())
	if err != nil {
		return 0, fmt.Errorf("reap documents: %w", err)
	}

	return res.RowsAffected()
}

// Close is a no-op; the connection belongs to the account repository.
func (s *PgStore) Close() error {
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
