package database

import "context"

type Repository interface {
	Ping(ctx context.Context) error
	CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error)
	GetAccountById(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	// SearchAccounts matches query against names and emails, leaving out
	// excludeId.
	SearchAccounts(ctx context.Context, query, excludeId string) ([]Account, error)
	Close() error
}
