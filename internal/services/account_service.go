package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recargas/internal/auth"
	"recargas/internal/core"
	applog "recargas/internal/log"
	"recargas/internal/store"
	"recargas/internal/validation"
)

// Registration is the sign-up form.
type Registration struct {
	Username  string `validate:"required,max=150,username" label:"Usuário"`
	Email     string `validate:"omitempty,email" label:"E-mail"`
	FirstName string `validate:"max=150" label:"Nome"`
	Password  string `validate:"required,min=8" label:"Senha"`
	Password2 string `validate:"eqfield=Password" label:"Confirmação de senha"`
}

var ErrUsernameTaken = errors.New("Já existe um usuário com este nome.")

// AccountService registers and authenticates users.
type AccountService struct {
	users  store.UserStore
	tokens *auth.TokenService
	now    func() time.Time
}

func NewAccountService(users store.UserStore, tokens *auth.TokenService) *AccountService {
	return &AccountService{users: users, tokens: tokens, now: time.Now}
}

// Register validates the form and creates a non-staff user.
func (s *AccountService) Register(ctx context.Context, reg Registration) (core.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := validation.Struct(reg); err != nil {
		return core.User{}, validation.Error(err)
	}
	return s.CreateUser(ctx, core.User{
		Username:  reg.Username,
		Email:     reg.Email,
		FirstName: strings.TrimSpace(reg.FirstName),
	}, reg.Password)
}

// CreateUser hashes password and stores u. Used by sign-up and the CLI.
func (s *AccountService) CreateUser(ctx context.Context, u core.User, password string) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return core.User{}, err
	}
	u.PasswordHash = hash
	u.CreatedAt = s.now().UTC()

	id, err := s.users.CreateUser(ctx, u)
	if errors.Is(err, core.ErrDuplicate) {
		return core.User{}, ErrUsernameTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	u.ID = id

	slog.InfoContext(ctx, "User registered",
		applog.FieldComponent, applog.ComponentAccount,
		applog.FieldUserID, id,
		"username", u.Username)
	return u, nil
}

// Authenticate checks the credentials and records the login time.
// Unknown users and wrong passwords both yield auth.ErrInvalidCredentials.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		slog.WarnContext(ctx, "Failed login",
			applog.FieldComponent, applog.ComponentAccount,
			applog.FieldOperation, applog.OpLogin,
			"username", u.Username)
		return core.User{}, err
	}

	u.LastLogin = s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, u.ID, u.LastLogin); err != nil {
		slog.WarnContext(ctx, "Failed to record last login",
			applog.FieldComponent, applog.ComponentAccount,
			applog.FieldUserID, u.ID,
			applog.FieldError, err)
	}
	return u, nil
}

// Login authenticates and issues a token.
func (s *AccountService) Login(ctx context.Context, username, password string) (core.User, string, error) {
	u, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return core.User{}, "", err
	}
	token, err := s.tokens.GenerateToken(u.ID)
	if err != nil {
		return core.User{}, "", err
	}
	return u, token, nil
}

// UserFromToken resolves a token to the stored user.
func (s *AccountService) UserFromToken(ctx context.Context, token string) (core.User, error) {
	id, err := s.tokens.ParseToken(token)
	if err != nil {
		return core.User{}, err
	}
	return s.users.GetUser(ctx, id)
}

func (s *AccountService) TokenTTL() time.Duration { return s.tokens.ExpiresIn() }

func (s *AccountService) ListUsers(ctx context.Context) ([]core.UserSummary, error) {
	return s.users.ListUsers(ctx)
}
