package database

import (
	"time"

	"github.com/npezzotti/go-mediashare/internal/types"
)

type Account struct {
	Id           string
	Name         string
	Email        string
	PasswordHash string
	AvatarUrl    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Account) User() types.User {
	return types.User{
		Id:        a.Id,
		Name:      a.Name,
		Email:     a.Email,
		AvatarUrl: a.AvatarUrl,
		CreatedAt: a.CreatedAt,
	}
}

type CreateAccountParams struct {
	Name         string
	Email        string
	PasswordHash string
	AvatarUrl    string
}
