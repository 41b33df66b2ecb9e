package database

import (
	"context"
	"database/sql"
	"time"
)

type PgRepository struct {
	conn *sql.DB
	now  func() time.Time
}

func NewPgRepository(conn *sql.DB) *PgRepository {
	return &PgRepository{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (db *PgRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
