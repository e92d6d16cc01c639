package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"recargas/internal/core"
	"recargas/internal/storage/memory"
)

type capturePublisher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	failFor  string
}

func (c *capturePublisher) PublishKPIs(_ context.Context, username string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if username == c.failFor {
		return errors.New("broker unavailable")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.payloads == nil {
		c.payloads = map[string][]byte{}
	}
	c.payloads[username] = payload
	return nil
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func seedUsers(t *testing.T) (*memory.Store, *RechargeService) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	svc := NewRechargeService(st, nil, nil)
	for _, name := range []string{"ana", "bia", "caio"} {
		id, err := st.CreateUser(ctx, core.User{Username: name})
		if err != nil {
			t.Fatal(err)
		}
		if name == "caio" {
			continue // no recharges
		}
		for d := 1; d <= 2; d++ {
			if _, err := svc.CreateRecharge(ctx, core.Recharge{UserID: id, Date: day(d), KWh: 10, Cost: 5, Odometer: float64(100 * d)}); err != nil {
				t.Fatal(err)
			}
		}
	}
	return st, svc
}

func TestPublishAll(t *testing.T) {
	st, svc := seedUsers(t)
	pub := &capturePublisher{failFor: "bia"}
	p := NewReportProcessor(st, svc, pub, DefaultReportProcessorConfig())

	published, failed := p.PublishAll(context.Background())
	if published != 1 || failed != 1 {
		t.Errorf("published=%d failed=%d", published, failed)
	}

	var kpis struct {
		Recharges int     `json:"recargas"`
		TotalKm   float64 `json:"total_km"`
	}
	if err := json.Unmarshal(pub.payloads["ana"], &kpis); err != nil {
		t.Fatal(err)
	}
	if kpis.Recharges != 2 || kpis.TotalKm != 100 {
		t.Errorf("payload = %+v", kpis)
	}
	if _, ok := pub.payloads["caio"]; ok {
		t.Error("user without recharges was published")
	}
}

func TestReportProcessor_Lifecycle(t *testing.T) {
	st, svc := seedUsers(t)
	pub := &capturePublisher{}
	p := NewReportProcessor(st, svc, pub, ReportProcessorConfig{Interval: time.Hour, SkipEmpty: true})

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
	if !p.IsRunning() {
		t.Error("not running after Start")
	}

	// the first round runs immediately
	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pub.count() != 2 {
		t.Errorf("published %d users, want 2", pub.count())
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
	if p.IsRunning() {
		t.Error("still running after Stop")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
