package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/npezzotti/go-mediashare/internal/database"
	"github.com/npezzotti/go-mediashare/internal/types"
	"github.com/npezzotti/go-mediashare/internal/verification"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultJwtExpiration = time.Hour * 24
	tokenCookieKey       = "token"
	minPasswordLength    = 6

	userIdClaim = "user-id"
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(userIdKey).(string)

	return userId, ok
}

type SendCodeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type SendCodeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type VerifyCodeRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	Success bool       `json:"success,omitempty"`
	User    types.User `json:"user"`
}

func (s *MediaShareApp) sendCode(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if err := s.decodeJson(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	trim(&req.Email, &req.Name)

	code, err := s.verifier.Issue(r.Context(), req.Email, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := SendCodeResponse{
		Success: true,
		Message: "verification code sent",
	}
	if s.dev {
		s.log.Printf("verification code for %s: %s", req.Email, code)
		resp.Code = code
	}

	s.writeJson(w, http.StatusOK, resp)
}

func verificationError(err error) error {
	switch {
	case errors.Is(err, verification.ErrNotFound):
		return NewInvalidRequestError("verification code not found")
	case errors.Is(err, verification.ErrMismatch):
		return NewInvalidRequestError("invalid verification code")
	case errors.Is(err, verification.ErrExpired):
		return NewInvalidRequestError("verification code expired")
	default:
		return err
	}
}

func (s *MediaShareApp) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := s.decodeJson(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	trim(&req.Email, &req.Code, &req.Name)

	switch {
	case req.Email == "":
		s.writeError(w, types.Required("email"))
		return
	case req.Code == "":
		s.writeError(w, types.Required("code"))
		return
	case req.Password == "":
		s.writeError(w, types.Required("password"))
		return
	case req.Name == "":
		s.writeError(w, types.Required("name"))
		return
	case len(req.Password) < minPasswordLength:
		s.writeError(w, types.Invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength)))
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	entry, err := s.verifier.Consume(r.Context(), req.Email, req.Code)
	if err != nil {
		s.writeError(w, verificationError(err))
		return
	}

	account, err := s.db.CreateAccount(r.Context(), database.CreateAccountParams{
		Name:         entry.Name,
		Email:        entry.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		if rerr := s.verifier.Restore(r.Context(), entry); rerr != nil {
			s.log.Printf("failed to restore verification code for %q: %v", entry.Email, rerr)
		}
		if errors.Is(err, database.ErrDuplicateEmail) {
			err = NewConflictError("email already registered")
		}
		s.writeError(w, err)
		return
	}

	if err := s.setSessionCookie(w, account.Id); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, UserResponse{Success: true, User: account.User()})
}

func (s *MediaShareApp) signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := s.decodeJson(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	trim(&req.Email)

	if req.Email == "" || req.Password == "" {
		s.writeError(w, NewInvalidRequestError("email and password are required"))
		return
	}

	account, err := s.db.GetAccountByEmail(r.Context(), req.Email)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, NewUnauthorizedError())
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	if !verifyPassword(account.PasswordHash, req.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	if err := s.setSessionCookie(w, account.Id); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, UserResponse{User: account.User()})
}

func (s *MediaShareApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	account, err := s.db.GetAccountById(r.Context(), userId)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, NewNotFoundError())
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, UserResponse{User: account.User()})
}

func (s *MediaShareApp) logout(w http.ResponseWriter, _ *http.Request) {
	// an expired cookie makes the browser drop it
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *MediaShareApp) setSessionCookie(w http.ResponseWriter, userId string) error {
	token, err := s.createJwtForSession(userId, defaultJwtExpiration)
	if err != nil {
		return fmt.Errorf("create session token: %w", err)
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))
	return nil
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func (s *MediaShareApp) createJwtForSession(userId string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		"exp":       jwt.NewNumericDate(time.Now().Add(exp)),
	})

	return token.SignedString(s.signingKey)
}

func (s *MediaShareApp) extractUserIdFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("invalid user id claim")
	}

	return userId, nil
}
