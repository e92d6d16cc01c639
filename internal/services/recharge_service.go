package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"recargas/internal/amqp"
	"recargas/internal/cache"
	"recargas/internal/core"
	"recargas/internal/kpi"
	applog "recargas/internal/log"
	"recargas/internal/store"
)

// EventPublisher is the part of the AMQP client the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, ev amqp.RechargeEvent) error
}

// RechargeRepository is what RechargeService reads and writes.
type RechargeRepository interface {
	store.RechargeStore
	store.SettingsStore
}

// RechargeService orchestrates recharge operations across storage, the
// report cache and AMQP.
type RechargeService struct {
	repo    RechargeRepository
	events  EventPublisher
	reports *cache.Loader[kpi.Report]
	logger  *applog.StructuredLogger
}

// ImportResult is the outcome of a bulk import.
type ImportResult struct {
	BatchID  string
	Rows     int
	Created  int
	Warnings []string
}

// NewRechargeService wires the service. events may be nil (publishing is
// skipped); reports may be nil, in which case a small private cache is used.
func NewRechargeService(repo RechargeRepository, events EventPublisher, reports *cache.Loader[kpi.Report]) *RechargeService {
	if reports == nil {
		reports = cache.NewLoader(cache.NewLRUCache[kpi.Report](100, 5*time.Minute))
	}
	return &RechargeService{
		repo:    repo,
		events:  events,
		reports: reports,
		logger:  applog.NewStructuredLogger(applog.FromContext(context.Background()).WithComponent(applog.ComponentRecharge)),
	}
}

// CreateRecharge saves a recharge locally and publishes an upsert event.
func (s *RechargeService) CreateRecharge(ctx context.Context, r core.Recharge) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	id, err := s.repo.CreateRecharge(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("save recharge: %w", err)
	}
	r.ID = id
	s.invalidate(r.UserID)
	s.logger.LogRechargeCreated(ctx, r)
	s.publish(ctx, amqp.NewUpsertEvent(r.UserID, id, ""))
	return id, nil
}

func (s *RechargeService) GetRecharge(ctx context.Context, userID, id int64) (core.Recharge, error) {
	return s.repo.GetRecharge(ctx, userID, id)
}

// UpdateRecharge replaces a recharge owned by r.UserID.
func (s *RechargeService) UpdateRecharge(ctx context.Context, r core.Recharge) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateRecharge(ctx, r); err != nil {
		return fmt.Errorf("update recharge %d: %w", r.ID, err)
	}
	s.invalidate(r.UserID)
	s.publish(ctx, amqp.NewUpsertEvent(r.UserID, r.ID, ""))
	return nil
}

func (s *RechargeService) DeleteRecharge(ctx context.Context, userID, id int64) error {
	if err := s.repo.DeleteRecharge(ctx, userID, id); err != nil {
		return fmt.Errorf("delete recharge %d: %w", id, err)
	}
	s.invalidate(userID)
	s.publish(ctx, amqp.NewDeleteEvent(userID, id))
	return nil
}

// DeleteAllRecharges removes every recharge of the user and returns how many went.
func (s *RechargeService) DeleteAllRecharges(ctx context.Context, userID int64) (int, error) {
	n, err := s.repo.DeleteAllRecharges(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete all recharges: %w", err)
	}
	s.invalidate(userID)
	s.publish(ctx, amqp.NewPurgeEvent(userID))
	return n, nil
}

// ListRecharges returns one page of the user's recharges matching f,
// newest first.
func (s *RechargeService) ListRecharges(ctx context.Context, userID int64, f core.RechargeFilter, rawPage string, size int) (core.Page[core.Recharge], error) {
	total, err := s.repo.CountRecharges(ctx, userID, f)
	if err != nil {
		return core.Page[core.Recharge]{}, fmt.Errorf("count recharges: %w", err)
	}
	pager := core.Paginate(total, rawPage, size)
	items, err := s.repo.ListRecharges(ctx, userID, f, pager.Size, pager.Offset())
	if err != nil {
		return core.Page[core.Recharge]{}, fmt.Errorf("list recharges: %w", err)
	}
	return core.Page[core.Recharge]{Pager: pager, Items: items}, nil
}

// AllRecharges returns every match of f, newest first. Used by exports.
func (s *RechargeService) AllRecharges(ctx context.Context, userID int64, f core.RechargeFilter) ([]core.Recharge, error) {
	items, err := s.repo.ListRecharges(ctx, userID, f, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list recharges: %w", err)
	}
	return items, nil
}

// Import stores already validated records one by one. A row that fails to
// save becomes a warning and the import goes on.
func (s *RechargeService) Import(ctx context.Context, userID int64, records []core.Recharge) ImportResult {
	res := ImportResult{BatchID: uuid.NewString(), Rows: len(records)}

	for _, r := range records {
		r.UserID = userID
		id, err := s.repo.CreateRecharge(ctx, r)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Erro ao salvar linha: %v", err))
			continue
		}
		res.Created++
		s.publish(ctx, amqp.NewUpsertEvent(userID, id, res.BatchID))
	}

	if res.Created > 0 {
		s.invalidate(userID)
	}
	s.logger.LogImport(ctx, userID, res.BatchID, res.Rows, res.Created, len(res.Warnings))
	return res
}

// Report returns the user's KPI report, computed on a cache miss.
func (s *RechargeService) Report(ctx context.Context, userID int64) (kpi.Report, error) {
	return s.reports.Get(ctx, reportKey(userID), func(ctx context.Context) (kpi.Report, error) {
		history, err := s.repo.History(ctx, userID)
		if err != nil {
			return kpi.Report{}, fmt.Errorf("load history: %w", err)
		}
		cfg, err := s.repo.GetSettings(ctx, userID)
		if err != nil {
			return kpi.Report{}, fmt.Errorf("load settings: %w", err)
		}
		return kpi.Compute(history, cfg), nil
	})
}

// ReportStats exposes the report cache counters for /metrics.
func (s *RechargeService) ReportStats() cache.Stats {
	return s.reports.Stats()
}

// Settings returns the user's comparison config or nil.
func (s *RechargeService) Settings(ctx context.Context, userID int64) (*core.ComparisonConfig, error) {
	return s.repo.GetSettings(ctx, userID)
}

var ErrInvalidSettings = errors.New("fuel price and economy must not be negative")

func (s *RechargeService) SaveSettings(ctx context.Context, cfg core.ComparisonConfig) error {
	if cfg.FuelPrice < 0 || cfg.FuelEconomy < 0 {
		return ErrInvalidSettings
	}
	if err := s.repo.SaveSettings(ctx, cfg); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.invalidate(cfg.UserID)
	return nil
}

func (s *RechargeService) invalidate(userID int64) {
	s.reports.Invalidate(reportKey(userID))
}

// publish never fails the caller: the local write already succeeded.
func (s *RechargeService) publish(ctx context.Context, ev amqp.RechargeEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish recharge event",
			applog.FieldComponent, applog.ComponentAMQP,
			"op", ev.Op,
			applog.FieldRechargeID, ev.RechargeID,
			applog.FieldUserID, ev.UserID,
			applog.FieldError, err)
	}
}

func reportKey(userID int64) string {
	return "report:" + strconv.FormatInt(userID, 10)
}
