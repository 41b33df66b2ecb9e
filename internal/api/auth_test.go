package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-mediashare/internal/database"
	"github.com/npezzotti/go-mediashare/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   string
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), "user-42"),
			userId:   "user-42",
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %q", tc.userId)
		})
	}
}

func TestSendCode(t *testing.T) {
	tcases := []struct {
		name       string
		dev        bool
		body       any
		status     int
		expectCode bool
	}{
		{
			name:       "dev mode echoes code",
			dev:        true,
			body:       SendCodeRequest{Email: "ann@example.com", Name: "Ann"},
			status:     http.StatusOK,
			expectCode: true,
		},
		{
			name:   "code is hidden outside dev mode",
			body:   SendCodeRequest{Email: "ann@example.com", Name: "Ann"},
			status: http.StatusOK,
		},
		{
			name:   "missing email",
			dev:    true,
			body:   SendCodeRequest{Name: "Ann"},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing name",
			dev:    true,
			body:   SendCodeRequest{Email: "ann@example.com", Name: "  "},
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid json",
			dev:    true,
			body:   "not json",
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, nil)
			app.dev = tc.dev

			rr := do(t, app, http.MethodPost, "/auth/send-code", tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			if tc.status != http.StatusOK {
				return
			}

			resp := decode[SendCodeResponse](t, rr)
			assert.True(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
			if tc.expectCode {
				assert.Regexp(t, `^[1-9][0-9]{5}$`, resp.Code)
			} else {
				assert.Empty(t, resp.Code)
			}
		})
	}
}

func sendCode(t *testing.T, app *MediaShareApp, email, name string) string {
	rr := do(t, app, http.MethodPost, "/auth/send-code", SendCodeRequest{Email: email, Name: name})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[SendCodeResponse](t, rr).Code
}

func TestVerifyCode_CreatesAccount(t *testing.T) {
	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)
	app := newTestApp(t, mockRepo)

	code := sendCode(t, app, "Ann@Example.com", "Ann")

	created := database.Account{
		Id:        "0190a5c4-7b7e-7c4e-9a7e-2f7f6c1e1a11",
		Name:      "Ann",
		Email:     "ann@example.com",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	mockRepo.On("CreateAccount", mock.Anything, mock.MatchedBy(func(p database.CreateAccountParams) bool {
		return p.Name == "Ann" && p.Email == "ann@example.com" && verifyPassword(p.PasswordHash, "secret1")
	})).Return(created, nil).Once()

	rr := do(t, app, http.MethodPost, "/auth/verify-code", VerifyCodeRequest{
		Email:    "ann@example.com",
		Code:     code,
		Password: "secret1",
		Name:     "Annie",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	resp := decode[UserResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, created.User(), resp.User)

	token := findCookie(rr, tokenCookieKey)
	require.NotNil(t, token, "expected token cookie to be set")
	userId, err := app.extractUserIdFromToken(token.Value)
	require.NoError(t, err)
	assert.Equal(t, created.Id, userId)

	rr = do(t, app, http.MethodPost, "/auth/verify-code", VerifyCodeRequest{
		Email:    "ann@example.com",
		Code:     code,
		Password: "secret1",
		Name:     "Ann",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected a used code to be rejected")
}

func TestVerifyCode_Failures(t *testing.T) {
	tcases := []struct {
		name        string
		req         func(code string) VerifyCodeRequest
		createErr   error
		expectError *ApiError
	}{
		{
			name: "wrong code",
			req: func(string) VerifyCodeRequest {
				return VerifyCodeRequest{Email: "ann@example.com", Code: "000000", Password: "secret1", Name: "Ann"}
			},
			expectError: NewInvalidRequestError("invalid verification code"),
		},
		{
			name: "unknown email",
			req: func(code string) VerifyCodeRequest {
				return VerifyCodeRequest{Email: "bob@example.com", Code: code, Password: "secret1", Name: "Bob"}
			},
			expectError: NewInvalidRequestError("verification code not found"),
		},
		{
			name: "short password",
			req: func(code string) VerifyCodeRequest {
				return VerifyCodeRequest{Email: "ann@example.com", Code: code, Password: "12345", Name: "Ann"}
			},
			expectError: NewInvalidRequestError("password must be at least 6 characters"),
		},
		{
			name: "missing code",
			req: func(string) VerifyCodeRequest {
				return VerifyCodeRequest{Email: "ann@example.com", Password: "secret1", Name: "Ann"}
			},
			expectError: NewInvalidRequestError("code is required"),
		},
		{
			name: "missing name",
			req: func(code string) VerifyCodeRequest {
				return VerifyCodeRequest{Email: "ann@example.com", Code: code, Password: "secret1"}
			},
			expectError: NewInvalidRequestError("name is required"),
		},
		{
			name: "email already registered",
			req: func(code string) VerifyCodeRequest {
				return VerifyCodeRequest{Email: "ann@example.com", Code: code, Password: "secret1", Name: "Ann"}
			},
			createErr:   database.ErrDuplicateEmail,
			expectError: NewConflictError("email already registered"),
		},
		{
			name: "db error",
			req: func(code string) VerifyCodeRequest {
				return VerifyCodeRequest{Email: "ann@example.com", Code: code, Password: "secret1", Name: "Ann"}
			},
			createErr:   errors.New("db error"),
			expectError: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			app := newTestApp(t, mockRepo)

			if tc.createErr != nil {
				mockRepo.On("CreateAccount", mock.Anything, mock.Anything).Return(database.Account{}, tc.createErr).Once()
			}

			code := sendCode(t, app, "ann@example.com", "Ann")
			rr := do(t, app, http.MethodPost, "/auth/verify-code", tc.req(code))

			e := decode[ApiError](t, rr)
			assert.Equal(t, e.StatusCode, rr.Code, "expected status code to match")
			assert.Equal(t, *tc.expectError, e, "expected ApiError response")
			assert.Nil(t, findCookie(rr, tokenCookieKey))
		})
	}
}

func TestVerifyCode_CodeSurvivesFailedSignup(t *testing.T) {
	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)
	app := newTestApp(t, mockRepo)

	code := sendCode(t, app, "ann@example.com", "Ann")
	req := VerifyCodeRequest{Email: "ann@example.com", Code: code, Password: "secret1", Name: "Ann"}

	mockRepo.On("CreateAccount", mock.Anything, mock.Anything).Return(database.Account{}, errors.New("db error")).Once()
	rr := do(t, app, http.MethodPost, "/auth/verify-code", req)
	require.Equal(t, http.StatusInternalServerError, rr.Code, rr.Body.String())

	created := database.Account{Id: "0190a5c4-7b7e-7c4e-9a7e-2f7f6c1e1a11", Name: "Ann", Email: "ann@example.com"}
	mockRepo.On("CreateAccount", mock.Anything, mock.Anything).Return(created, nil).Once()
	rr = do(t, app, http.MethodPost, "/auth/verify-code", req)
	assert.Equal(t, http.StatusCreated, rr.Code, "expected the code to remain usable after a failed signup")
}

func Test_signin(t *testing.T) {
	hash, err := hashPassword("password123")
	require.NoError(t, err)

	mockAccount := database.Account{
		Id:           "user-1",
		Name:         "Test User",
		Email:        "testuser@example.com",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}

	tcases := []struct {
		name        string
		body        any
		mockAccount database.Account
		mockErr     error
		mockCalled  bool
		expectError *ApiError
	}{
		{
			name:        "successful signin",
			body:        SigninRequest{Email: "testuser@example.com", Password: "password123"},
			mockAccount: mockAccount,
			mockCalled:  true,
		},
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			expectError: NewBadRequestError(),
		},
		{
			name:        "fails with missing password",
			body:        SigninRequest{Email: "testuser@example.com"},
			expectError: NewInvalidRequestError("email and password are required"),
		},
		{
			name:        "fails with unknown account",
			body:        SigninRequest{Email: "nobody@example.com", Password: "password123"},
			mockErr:     database.ErrNotFound,
			mockCalled:  true,
			expectError: NewUnauthorizedError(),
		},
		{
			name:        "fails with incorrect password",
			body:        SigninRequest{Email: "testuser@example.com", Password: "wrong-password"},
			mockAccount: mockAccount,
			mockCalled:  true,
			expectError: NewUnauthorizedError(),
		},
		{
			name:        "fails with db error",
			body:        SigninRequest{Email: "testuser@example.com", Password: "password123"},
			mockErr:     errors.New("db error"),
			mockCalled:  true,
			expectError: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockCalled {
				req := tc.body.(SigninRequest)
				mockRepo.On("GetAccountByEmail", mock.Anything, req.Email).Return(tc.mockAccount, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := do(t, app, http.MethodPost, "/auth/signin", tc.body)

			if tc.expectError == nil {
				token := findCookie(rr, tokenCookieKey)
				require.NotNil(t, token, "expected token cookie to be set")
				assert.NotEmpty(t, token.Value, "expected token value to be set")
				assert.WithinDuration(t, time.Now().Add(defaultJwtExpiration), token.Expires, 2*time.Second, "expected token expiration to be set correctly")
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, tc.mockAccount.User(), decode[UserResponse](t, rr).User)
				return
			}

			e := decode[ApiError](t, rr)
			assert.Equal(t, e.StatusCode, rr.Code, "expected status code to match")
			assert.Equal(t, *tc.expectError, e, "expected ApiError response")
		})
	}
}

func Test_session(t *testing.T) {
	account := database.Account{Id: "user-1", Name: "Ann", Email: "ann@example.com"}

	tcases := []struct {
		name    string
		mockErr error
		status  int
	}{
		{name: "current user", status: http.StatusOK},
		{name: "account removed", mockErr: database.ErrNotFound, status: http.StatusNotFound},
		{name: "db error", mockErr: errors.New("db error"), status: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("GetAccountById", mock.Anything, "user-1").Return(account, tc.mockErr).Once()

			app := newTestApp(t, mockRepo)
			token, err := app.createJwtForSession("user-1", defaultJwtExpiration)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
			req.AddCookie(createJwtCookie(token, defaultJwtExpiration))
			rr := httptest.NewRecorder()
			app.Handler().ServeHTTP(rr, req)

			require.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, types.User{Id: "user-1", Name: "Ann", Email: "ann@example.com"}, decode[UserResponse](t, rr).User)
			}
		})
	}
}

func Test_logout(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(createJwtCookie("testtoken", defaultJwtExpiration))
	rr := httptest.NewRecorder()
	app.logout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)

	token := findCookie(rr, tokenCookieKey)
	require.NotNil(t, token, "expected token cookie to be set")
	assert.True(t, token.Expires.Before(time.Now()), "expected token to be expired")
	assert.Equal(t, "", token.Value, "expected token value to be empty")
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", hash)
	assert.True(t, verifyPassword(hash, "password123"))
	assert.False(t, verifyPassword(hash, "password124"))
}
