package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"
	searchLimit     = 50

	accountColumns = "id, name, email, password_hash, avatar_url, created_at, updated_at"

	createAccountQuery = "INSERT INTO accounts (" + accountColumns + ") " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING " + accountColumns
	getAccountByIdQuery = "SELECT " + accountColumns + " FROM accounts " +
		"WHERE id = $1 LIMIT 1"
	getAccountByEmailQuery = "SELECT " + accountColumns + " FROM accounts " +
		"WHERE lower(email) = lower($1) LIMIT 1"
	searchAccountsQuery = "SELECT " + accountColumns + " FROM accounts " +
		"WHERE (name ILIKE $1 ESCAPE '\\' OR email ILIKE $1 ESCAPE '\\') AND id::text <> $2 " +
		"ORDER BY name, id LIMIT $3"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	err := row.Scan(
		&a.Id,
		&a.Name,
		&a.Email,
		&a.PasswordHash,
		&a.AvatarUrl,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (db *PgRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("generate account id: %w", err)
	}
	now := db.now()

	a, err := scanAccount(db.conn.QueryRowContext(ctx,
		createAccountQuery,
		id.String(),
		params.Name,
		strings.ToLower(params.Email),
		params.PasswordHash,
		params.AvatarUrl,
		now,
		now,
	))

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return Account{}, ErrDuplicateEmail
	}

	return a, err
}

func (db *PgRepository) GetAccountById(ctx context.Context, id string) (Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Account{}, ErrNotFound
	}

	a, err := scanAccount(db.conn.QueryRowContext(ctx, getAccountByIdQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

func (db *PgRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	a, err := scanAccount(db.conn.QueryRowContext(ctx, getAccountByEmailQuery, email))
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

func (db *PgRepository) SearchAccounts(ctx context.Context, query, excludeId string) ([]Account, error) {
	rows, err := db.conn.QueryContext(ctx, searchAccountsQuery, "%"+escapeLike(query)+"%", excludeId, searchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
