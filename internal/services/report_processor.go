package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"recargas/internal/core"
	"recargas/internal/kpi"
	applog "recargas/internal/log"
)

// KPIPublisher delivers a user's KPIs, e.g. as JSON over MQTT.
type KPIPublisher interface {
	PublishKPIs(ctx context.Context, username string, payload any) error
}

// UserLister enumerates the users whose reports get published.
type UserLister interface {
	ListUsers(ctx context.Context) ([]core.UserSummary, error)
}

// ReportSource computes a user's report.
type ReportSource interface {
	Report(ctx context.Context, userID int64) (kpi.Report, error)
}

type ReportProcessorConfig struct {
	// Interval between publishing rounds (default: 15m)
	Interval time.Duration
	// SkipEmpty skips users without recharges
	SkipEmpty bool
}

func DefaultReportProcessorConfig() ReportProcessorConfig {
	return ReportProcessorConfig{Interval: 15 * time.Minute, SkipEmpty: true}
}

// ReportProcessor periodically recomputes every user's report and
// publishes the KPIs.
type ReportProcessor struct {
	users     UserLister
	reports   ReportSource
	publisher KPIPublisher
	config    ReportProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReportProcessor(users UserLister, reports ReportSource, publisher KPIPublisher, config ReportProcessorConfig) *ReportProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultReportProcessorConfig().Interval
	}
	return &ReportProcessor{
		users:     users,
		reports:   reports,
		publisher: publisher,
		config:    config,
	}
}

// Start begins the loop. Returns an error if already running.
func (p *ReportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("report processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.runLoop(ctx, p.stopCh, p.doneCh)

	slog.InfoContext(ctx, "Report processor started",
		applog.FieldComponent, applog.ComponentReport,
		"interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for the current round to finish.
func (p *ReportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	close(p.stopCh)
	done := p.doneCh
	p.running = false
	p.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Report processor stop timed out", applog.FieldComponent, applog.ComponentReport)
		return ctx.Err()
	}
}

func (p *ReportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReportProcessor) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.PublishAll(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PublishAll(ctx)
		}
	}
}

// PublishAll runs one round and returns how many users were published and
// how many failed. A failing user does not stop the round.
func (p *ReportProcessor) PublishAll(ctx context.Context) (published, failed int) {
	users, err := p.users.ListUsers(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list users for report publishing",
			applog.FieldComponent, applog.ComponentReport,
			applog.FieldError, err)
		return 0, 0
	}

	for _, u := range users {
		if ctx.Err() != nil {
			return published, failed
		}
		if p.config.SkipEmpty && u.Recharges == 0 {
			continue
		}
		if err := p.publishUser(ctx, u.User); err != nil {
			failed++
			slog.ErrorContext(ctx, "Failed to publish KPIs",
				applog.FieldComponent, applog.ComponentReport,
				applog.FieldUserID, u.ID,
				applog.FieldError, err)
			continue
		}
		published++
	}

	slog.DebugContext(ctx, "Report round finished",
		applog.FieldComponent, applog.ComponentReport,
		"published", published,
		"failed", failed)
	return published, failed
}

func (p *ReportProcessor) publishUser(ctx context.Context, u core.User) error {
	rep, err := p.reports.Report(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("compute report: %w", err)
	}
	return p.publisher.PublishKPIs(ctx, u.Username, rep.KPIs)
}
