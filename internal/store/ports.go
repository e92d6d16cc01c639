// Package store declares the persistence ports the services depend on.
// Implementations live under internal/storage.
package store

import (
	"context"
	"time"

	"recargas/internal/core"
)

// Ports for storage adapters. Lookups that miss return core.ErrNotFound;
// records owned by another user are reported as missing.
type (
	RechargeStore interface {
		CreateRecharge(ctx context.Context, r core.Recharge) (int64, error)
		GetRecharge(ctx context.Context, userID, id int64) (core.Recharge, error)
		UpdateRecharge(ctx context.Context, r core.Recharge) error
		DeleteRecharge(ctx context.Context, userID, id int64) error
		DeleteAllRecharges(ctx context.Context, userID int64) (int, error)

		// ListRecharges returns matches newest first. limit <= 0 means no limit.
		ListRecharges(ctx context.Context, userID int64, f core.RechargeFilter, limit, offset int) ([]core.Recharge, error)
		CountRecharges(ctx context.Context, userID int64, f core.RechargeFilter) (int, error)

		// History returns every recharge of the user oldest first.
		History(ctx context.Context, userID int64) ([]core.Recharge, error)
	}

	SettingsStore interface {
		// GetSettings returns nil without error when the user has none.
		GetSettings(ctx context.Context, userID int64) (*core.ComparisonConfig, error)
		SaveSettings(ctx context.Context, cfg core.ComparisonConfig) error
	}

	UserStore interface {
		// CreateUser fails with core.ErrDuplicate when the username is taken.
		CreateUser(ctx context.Context, u core.User) (int64, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		GetUserByUsername(ctx context.Context, username string) (core.User, error)
		TouchLastLogin(ctx context.Context, id int64, at time.Time) error
		ListUsers(ctx context.Context) ([]core.UserSummary, error)
	}

	ContactStore interface {
		SaveContact(ctx context.Context, m core.ContactMessage) (int64, error)
		ListContacts(ctx context.Context, limit int) ([]core.ContactMessage, error)
	}

	// SyncTracker records which recharges were mirrored to the spreadsheet.
	SyncTracker interface {
		PendingSync(ctx context.Context, limit int) ([]core.Recharge, error)
		MarkSynced(ctx context.Context, id int64) error
		MarkSyncError(ctx context.Context, id int64) error
	}

	Store interface {
		RechargeStore
		SettingsStore
		UserStore
		ContactStore
		SyncTracker
		Ping(ctx context.Context) error
		Close() error
	}
)
