package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"recargas/internal/amqp"
	"recargas/internal/core"
	"recargas/internal/sheets"
	"recargas/internal/store"
)

// Storage is what the worker reads from the primary database.
type Storage interface {
	GetRecharge(ctx context.Context, userID, id int64) (core.Recharge, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	store.SyncTracker
}

// SyncWorker mirrors recharges from the database into a spreadsheet.
type SyncWorker struct {
	storage   Storage
	sheet     sheets.RechargeSheet
	batchSize int

	mu        sync.Mutex
	usernames map[int64]string
}

func NewSyncWorker(storage Storage, sheet sheets.RechargeSheet, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SyncWorker{
		storage:   storage,
		sheet:     sheet,
		batchSize: batchSize,
		usernames: map[int64]string{},
	}
}

// HandleEvent applies one event to the sheet. A returned error requeues it.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev amqp.RechargeEvent) error {
	logger := slog.With("op", ev.Op, "recharge_id", ev.RechargeID, "user_id", ev.UserID)

	switch ev.Op {
	case amqp.OpUpsert:
		r, err := w.storage.GetRecharge(ctx, ev.UserID, ev.RechargeID)
		if errors.Is(err, core.ErrNotFound) {
			// deleted before we got here; its delete event follows
			logger.InfoContext(ctx, "Recharge vanished before sync")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get recharge from storage: %w", err)
		}
		return w.syncRecharge(ctx, r)

	case amqp.OpDelete:
		if err := w.sheet.DeleteRecharge(ctx, ev.RechargeID); err != nil {
			return fmt.Errorf("delete recharge from sheet: %w", err)
		}
		logger.InfoContext(ctx, "Removed recharge from sheet")
		return nil

	case amqp.OpPurge:
		n, err := w.sheet.PurgeUser(ctx, ev.UserID)
		if err != nil {
			return fmt.Errorf("purge user from sheet: %w", err)
		}
		logger.InfoContext(ctx, "Purged user rows from sheet", "rows", n)
		return nil
	}
	return fmt.Errorf("unknown op %q", ev.Op)
}

// ProcessPending syncs up to one batch of recharges still flagged pending.
// It backs up the queue when messages were lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced, failed int, err error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger backfill when the worker boots.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending recharges found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced, "errors", failed)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.storage.PendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending recharges: %w", err)
	}
	for _, r := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.syncRecharge(ctx, r); err != nil {
			slog.ErrorContext(ctx, "Failed to sync recharge", "id", r.ID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *SyncWorker) syncRecharge(ctx context.Context, r core.Recharge) error {
	username, err := w.username(ctx, r.UserID)
	if err != nil {
		w.markError(ctx, r.ID)
		return err
	}

	if err := w.sheet.UpsertRecharge(ctx, username, r); err != nil {
		w.markError(ctx, r.ID)
		return fmt.Errorf("upsert to sheet: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, r.ID); err != nil {
		// the row is in the sheet already
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", r.ID, "error", err)
	}
	slog.DebugContext(ctx, "Synced recharge", "id", r.ID, "user", username)
	return nil
}

func (w *SyncWorker) markError(ctx context.Context, id int64) {
	if err := w.storage.MarkSyncError(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", err)
	}
}

func (w *SyncWorker) username(ctx context.Context, userID int64) (string, error) {
	w.mu.Lock()
	name, ok := w.usernames[userID]
	w.mu.Unlock()
	if ok {
		return name, nil
	}

	u, err := w.storage.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get user %d: %w", userID, err)
	}
	w.mu.Lock()
	w.usernames[userID] = u.Username
	w.mu.Unlock()
	return u.Username, nil
}
