package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"recargas/internal/amqp"
	"recargas/internal/core"
	"recargas/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.RechargeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev amqp.RechargeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ops() []amqp.Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.Op, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Op
	}
	return out
}

// failingRepo rejects recharges with a given odometer.
type failingRepo struct {
	*memory.Store
	badOdometer float64
}

func (r failingRepo) CreateRecharge(ctx context.Context, rc core.Recharge) (int64, error) {
	if rc.Odometer == r.badOdometer {
		return 0, errors.New("disk full")
	}
	return r.Store.CreateRecharge(ctx, rc)
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC)
}

func TestCreateRecharge_PublishesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewRechargeService(memory.New(), pub, nil)

	rep, err := svc.Report(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rep.KPIs.Recharges != 0 {
		t.Fatalf("empty history reported %d recharges", rep.KPIs.Recharges)
	}

	id, err := svc.CreateRecharge(ctx, core.Recharge{UserID: 1, Date: day(1), KWh: 20, Cost: 30, Odometer: 100})
	if err != nil {
		t.Fatal(err)
	}
	if id <= 0 {
		t.Fatalf("id = %d", id)
	}

	rep, err = svc.Report(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rep.KPIs.Recharges != 1 {
		t.Errorf("report not invalidated: %d recharges", rep.KPIs.Recharges)
	}
	if got := pub.ops(); len(got) != 1 || got[0] != amqp.OpUpsert {
		t.Errorf("events = %v", got)
	}
}

func TestCreateRecharge_Invalid(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewRechargeService(memory.New(), pub, nil)

	_, err := svc.CreateRecharge(context.Background(), core.Recharge{UserID: 1, KWh: 5})
	if !errors.Is(err, core.ErrZeroDate) {
		t.Errorf("err = %v, want ErrZeroDate", err)
	}
	if len(pub.ops()) != 0 {
		t.Error("invalid recharge must not publish")
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	svc := NewRechargeService(memory.New(), &recordingPublisher{err: errors.New("broker down")}, nil)

	id, err := svc.CreateRecharge(ctx, core.Recharge{UserID: 1, Date: day(2), KWh: 10})
	if err != nil {
		t.Fatalf("publish failure leaked: %v", err)
	}
	if _, err := svc.GetRecharge(ctx, 1, id); err != nil {
		t.Errorf("recharge not stored: %v", err)
	}
}

func TestUpdateDeleteOwnership(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewRechargeService(memory.New(), pub, nil)

	id, err := svc.CreateRecharge(ctx, core.Recharge{UserID: 1, Date: day(1), KWh: 10})
	if err != nil {
		t.Fatal(err)
	}

	err = svc.UpdateRecharge(ctx, core.Recharge{ID: id, UserID: 2, Date: day(1), KWh: 99})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign update err = %v", err)
	}
	if err := svc.DeleteRecharge(ctx, 2, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign delete err = %v", err)
	}

	if err := svc.UpdateRecharge(ctx, core.Recharge{ID: id, UserID: 1, Date: day(1), KWh: 12}); err != nil {
		t.Fatal(err)
	}
	got, _ := svc.GetRecharge(ctx, 1, id)
	if got.KWh != 12 {
		t.Errorf("kwh = %v", got.KWh)
	}
	if err := svc.DeleteRecharge(ctx, 1, id); err != nil {
		t.Fatal(err)
	}

	want := []amqp.Op{amqp.OpUpsert, amqp.OpUpsert, amqp.OpDelete}
	got2 := pub.ops()
	if len(got2) != len(want) {
		t.Fatalf("events = %v, want %v", got2, want)
	}
	for i := range want {
		if got2[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got2[i], want[i])
		}
	}
}

func TestDeleteAllRecharges(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewRechargeService(memory.New(), pub, nil)

	for i := 1; i <= 3; i++ {
		if _, err := svc.CreateRecharge(ctx, core.Recharge{UserID: 1, Date: day(i), KWh: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.CreateRecharge(ctx, core.Recharge{UserID: 2, Date: day(1), KWh: 1}); err != nil {
		t.Fatal(err)
	}

	n, err := svc.DeleteAllRecharges(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("deleted %d, want 3", n)
	}
	page, _ := svc.ListRecharges(ctx, 2, core.RechargeFilter{}, "1", 20)
	if page.Total != 1 {
		t.Errorf("other user's recharges touched: total %d", page.Total)
	}
	ops := pub.ops()
	if ops[len(ops)-1] != amqp.OpPurge {
		t.Errorf("last event = %s, want purge", ops[len(ops)-1])
	}
}

func TestListRecharges_Pagination(t *testing.T) {
	ctx := context.Background()
	svc := NewRechargeService(memory.New(), nil, nil)
	for i := 1; i <= 25; i++ {
		if _, err := svc.CreateRecharge(ctx, core.Recharge{UserID: 1, Date: day(i), KWh: float64(i)}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		raw      string
		number   int
		items    int
		firstDay int
	}{
		{"1", 1, 20, 25},
		{"2", 2, 5, 5},
		{"abc", 1, 20, 25},
		{"99", 2, 5, 5},
	}
	for _, tt := range tests {
		page, err := svc.ListRecharges(ctx, 1, core.RechargeFilter{}, tt.raw, 20)
		if err != nil {
			t.Fatal(err)
		}
		if page.Number != tt.number || len(page.Items) != tt.items {
			t.Errorf("page %q: number=%d items=%d", tt.raw, page.Number, len(page.Items))
			continue
		}
		if page.Items[0].Date.Day() != tt.firstDay {
			t.Errorf("page %q starts at day %d, want %d", tt.raw, page.Items[0].Date.Day(), tt.firstDay)
		}
	}
}

func TestImport_RowFailuresBecomeWarnings(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewRechargeService(failingRepo{Store: memory.New(), badOdometer: 666}, pub, nil)

	res := svc.Import(ctx, 7, []core.Recharge{
		{Date: day(1), KWh: 10, Odometer: 100},
		{Date: day(2), KWh: 10, Odometer: 666},
		{Date: day(3), KWh: 10, Odometer: 200},
	})

	if res.Created != 2 || res.Rows != 3 {
		t.Errorf("created=%d rows=%d", res.Created, res.Rows)
	}
	if len(res.Warnings) != 1 || !strings.HasPrefix(res.Warnings[0], "Erro ao salvar linha: ") {
		t.Errorf("warnings = %q", res.Warnings)
	}
	if res.BatchID == "" {
		t.Error("missing batch id")
	}
	for _, ev := range pub.events {
		if ev.BatchID != res.BatchID || ev.UserID != 7 {
			t.Errorf("event %+v not tagged with batch/user", ev)
		}
	}

	rep, err := svc.Report(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if rep.KPIs.TotalKm != 100 {
		t.Errorf("total km = %v, want 100", rep.KPIs.TotalKm)
	}
}

func TestSaveSettings(t *testing.T) {
	ctx := context.Background()
	svc := NewRechargeService(memory.New(), nil, nil)

	if err := svc.SaveSettings(ctx, core.ComparisonConfig{UserID: 1, FuelPrice: -1}); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("err = %v", err)
	}

	if _, err := svc.CreateRecharge(ctx, core.Recharge{UserID: 1, Date: day(1), KWh: 10, Odometer: 100}); err != nil {
		t.Fatal(err)
	}
	rep, _ := svc.Report(ctx, 1)
	if rep.HasConfig {
		t.Fatal("report has config before settings were saved")
	}

	if err := svc.SaveSettings(ctx, core.ComparisonConfig{UserID: 1, FuelPrice: 6, FuelEconomy: 12}); err != nil {
		t.Fatal(err)
	}
	rep, _ = svc.Report(ctx, 1)
	if !rep.HasConfig {
		t.Error("report cache not invalidated by settings")
	}
	cfg, err := svc.Settings(ctx, 1)
	if err != nil || cfg == nil || cfg.FuelEconomy != 12 {
		t.Errorf("settings = %+v, %v", cfg, err)
	}
}
