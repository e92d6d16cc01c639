package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"recargas/internal/auth"
	"recargas/internal/storage/memory"
)

func newAccounts() (*AccountService, *memory.Store) {
	st := memory.New()
	return NewAccountService(st, auth.NewTokenService("test-secret", time.Hour)), st
}

func TestRegister(t *testing.T) {
	svc, _ := newAccounts()
	ctx := context.Background()

	tests := []struct {
		name    string
		reg     Registration
		wantErr string
	}{
		{
			name: "valid",
			reg:  Registration{Username: "ana", Email: "ana@example.com", Password: "segredo123", Password2: "segredo123"},
		},
		{
			name:    "password mismatch",
			reg:     Registration{Username: "bia", Password: "segredo123", Password2: "outra-senha"},
			wantErr: "As senhas não conferem.",
		},
		{
			name:    "short password",
			reg:     Registration{Username: "caio", Password: "curta", Password2: "curta"},
			wantErr: "pelo menos 8",
		},
		{
			name:    "bad username",
			reg:     Registration{Username: "com espaço", Password: "segredo123", Password2: "segredo123"},
			wantErr: "apenas letras",
		},
		{
			name:    "duplicate",
			reg:     Registration{Username: "ana", Password: "segredo123", Password2: "segredo123"},
			wantErr: ErrUsernameTaken.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := svc.Register(ctx, tt.reg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if u.ID == 0 || u.PasswordHash == "" || u.PasswordHash == tt.reg.Password {
					t.Errorf("user not stored with a hash: %+v", u)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	svc, st := newAccounts()
	ctx := context.Background()

	reg := Registration{Username: "ana", Password: "segredo123", Password2: "segredo123"}
	created, err := svc.Register(ctx, reg)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.Login(ctx, "ana", "errada"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, _, err := svc.Login(ctx, "ninguem", "segredo123"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}

	u, token, err := svc.Login(ctx, " ana ", "segredo123")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != created.ID || token == "" {
		t.Fatalf("login returned %+v %q", u, token)
	}

	stored, _ := st.GetUser(ctx, u.ID)
	if stored.LastLogin.IsZero() {
		t.Error("last login not recorded")
	}

	fromToken, err := svc.UserFromToken(ctx, token)
	if err != nil || fromToken.Username != "ana" {
		t.Errorf("UserFromToken = %+v, %v", fromToken, err)
	}
	if _, err := svc.UserFromToken(ctx, token+"x"); err == nil {
		t.Error("tampered token accepted")
	}
}
