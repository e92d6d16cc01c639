// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"recargas/internal/core"
	"recargas/internal/store"
)

// Run exercises s, which must be empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	t.Run("duplicate username", func(t *testing.T) {
		_, err := s.CreateUser(ctx, core.User{Username: "alice", PasswordHash: "x"})
		if !errors.Is(err, core.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("user lookup", func(t *testing.T) {
		u, err := s.GetUserByUsername(ctx, "alice")
		if err != nil || u.ID != alice {
			t.Fatalf("lookup by username: %v %+v", err, u)
		}
		if _, err := s.GetUser(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
		if err := s.TouchLastLogin(ctx, alice, at); err != nil {
			t.Fatalf("touch last login: %v", err)
		}
		u, _ = s.GetUser(ctx, alice)
		if !u.LastLogin.Equal(at) {
			t.Fatalf("expected last login %v, got %v", at, u.LastLogin)
		}
	})

	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	ids := make([]int64, 0, 4)
	for i, r := range []core.Recharge{
		{UserID: alice, Date: base, KWh: 10, Cost: 20, Odometer: 100, Location: "Casa"},
		{UserID: alice, Date: base.AddDate(0, 0, 10), KWh: 12, Cost: 0, Exempt: true, Odometer: 200, Location: "Shopping Iguatemi", Notes: "grátis"},
		{UserID: alice, Date: base.AddDate(0, 1, 0), KWh: 15, Cost: 30, Odometer: 320, Location: "Posto 100%"},
		{UserID: bob, Date: base, KWh: 5, Cost: 9, Odometer: 50},
	} {
		id, err := s.CreateRecharge(ctx, r)
		if err != nil {
			t.Fatalf("create recharge %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	t.Run("ownership", func(t *testing.T) {
		if _, err := s.GetRecharge(ctx, bob, ids[0]); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected foreign recharge to be missing, got %v", err)
		}
		if err := s.DeleteRecharge(ctx, bob, ids[0]); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected foreign delete to fail, got %v", err)
		}
		r, err := s.GetRecharge(ctx, alice, ids[0])
		if err != nil || !r.Date.Equal(base) || r.Location != "Casa" {
			t.Fatalf("get own recharge: %v %+v", err, r)
		}
	})

	t.Run("listing and filters", func(t *testing.T) {
		all, err := s.ListRecharges(ctx, alice, core.RechargeFilter{}, 0, 0)
		if err != nil || len(all) != 3 {
			t.Fatalf("list: %v %d", err, len(all))
		}
		if all[0].ID != ids[2] || all[2].ID != ids[0] {
			t.Fatalf("expected newest first, got %d..%d", all[0].ID, all[2].ID)
		}

		page, _ := s.ListRecharges(ctx, alice, core.RechargeFilter{}, 2, 2)
		if len(page) != 1 || page[0].ID != ids[0] {
			t.Fatalf("unexpected second page %+v", page)
		}

		exempt := true
		cases := []struct {
			name string
			f    core.RechargeFilter
			want int
		}{
			{"location", core.RechargeFilter{Location: "shopping"}, 1},
			{"notes", core.RechargeFilter{Notes: "GRÁ"}, 1},
			{"literal percent", core.RechargeFilter{Location: "100%"}, 1},
			{"exempt", core.RechargeFilter{Exempt: &exempt}, 1},
			{"from", core.RechargeFilter{From: base.AddDate(0, 0, 1)}, 2},
			{"until", core.RechargeFilter{Until: base.AddDate(0, 0, 10)}, 2},
		}
		for _, tc := range cases {
			n, err := s.CountRecharges(ctx, alice, tc.f)
			if err != nil || n != tc.want {
				t.Fatalf("%s: expected %d, got %d (%v)", tc.name, tc.want, n, err)
			}
		}
	})

	t.Run("history oldest first", func(t *testing.T) {
		h, err := s.History(ctx, alice)
		if err != nil || len(h) != 3 || h[0].ID != ids[0] {
			t.Fatalf("history: %v %+v", err, h)
		}
	})

	t.Run("update", func(t *testing.T) {
		r, _ := s.GetRecharge(ctx, alice, ids[0])
		r.Cost = 25.5
		r.Notes = "ajuste"
		if err := s.UpdateRecharge(ctx, r); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, _ := s.GetRecharge(ctx, alice, ids[0])
		if got.Cost != 25.5 || got.Notes != "ajuste" {
			t.Fatalf("update not persisted: %+v", got)
		}
		r.UserID = bob
		if err := s.UpdateRecharge(ctx, r); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected foreign update to fail, got %v", err)
		}
	})

	t.Run("sync tracking", func(t *testing.T) {
		pending, err := s.PendingSync(ctx, 10)
		if err != nil || len(pending) != 4 {
			t.Fatalf("pending: %v %d", err, len(pending))
		}
		if err := s.MarkSynced(ctx, ids[0]); err != nil {
			t.Fatalf("mark synced: %v", err)
		}
		if err := s.MarkSyncError(ctx, ids[1]); err != nil {
			t.Fatalf("mark error: %v", err)
		}
		pending, _ = s.PendingSync(ctx, 10)
		if len(pending) != 2 {
			t.Fatalf("expected 2 pending, got %d", len(pending))
		}
	})

	t.Run("settings", func(t *testing.T) {
		cfg, err := s.GetSettings(ctx, alice)
		if err != nil || cfg != nil {
			t.Fatalf("expected no settings, got %+v %v", cfg, err)
		}
		for _, price := range []float64{5.89, 6.19} {
			if err := s.SaveSettings(ctx, core.ComparisonConfig{UserID: alice, FuelPrice: price, FuelEconomy: 11}); err != nil {
				t.Fatalf("save settings: %v", err)
			}
		}
		cfg, err = s.GetSettings(ctx, alice)
		if err != nil || cfg == nil || cfg.FuelPrice != 6.19 || cfg.FuelEconomy != 11 {
			t.Fatalf("unexpected settings %+v %v", cfg, err)
		}
	})

	t.Run("user summaries", func(t *testing.T) {
		users, err := s.ListUsers(ctx)
		if err != nil || len(users) != 2 {
			t.Fatalf("list users: %v %d", err, len(users))
		}
		if users[0].Username != "alice" || users[0].Recharges != 3 || users[1].Recharges != 1 {
			t.Fatalf("unexpected summaries %+v", users)
		}
	})

	t.Run("contacts", func(t *testing.T) {
		for _, msg := range []string{"primeira", "segunda"} {
			if _, err := s.SaveContact(ctx, core.ContactMessage{Name: "Ana", Email: "ana@example.com", Message: msg}); err != nil {
				t.Fatalf("save contact: %v", err)
			}
		}
		msgs, err := s.ListContacts(ctx, 10)
		if err != nil || len(msgs) != 2 {
			t.Fatalf("list contacts: %v %d", err, len(msgs))
		}
		if msgs[0].Status != core.ContactStatusSent {
			t.Fatalf("expected default status, got %q", msgs[0].Status)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.DeleteRecharge(ctx, alice, ids[0]); err != nil {
			t.Fatalf("delete: %v", err)
		}
		n, err := s.DeleteAllRecharges(ctx, alice)
		if err != nil || n != 2 {
			t.Fatalf("delete all: %v %d", err, n)
		}
		left, _ := s.CountRecharges(ctx, bob, core.RechargeFilter{})
		if left != 1 {
			t.Fatalf("other users' recharges must survive, got %d", left)
		}
	})
}

func mustUser(t *testing.T, s store.Store, name string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), core.User{Username: name, Email: name + "@example.com", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return id
}
