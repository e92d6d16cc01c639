package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"recargas/internal/core"
)

func formRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/recharge/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func jsonRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/recharges/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestRequestBodyParser_Form(t *testing.T) {
	p := NewRequestBodyParser(formRequest("local=+Casa+&isento=on&password=+s3cr3t+"))
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.IsJSON() {
		t.Error("form body reported as JSON")
	}
	if got := p.Get("local"); got != "Casa" {
		t.Errorf("Get(local) = %q", got)
	}
	if !p.Bool("isento") {
		t.Error("checkbox 'on' should be true")
	}
	if got := p.Secret("password"); got != " s3cr3t " {
		t.Errorf("Secret must not trim, got %q", got)
	}
	if p.Has("custo") {
		t.Error("Has(custo) should be false")
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	// no content type: detected by the leading brace
	r := httptest.NewRequest(http.MethodPost, "/api/recharges/", strings.NewReader(`{"kwh": 12.5, "isento": true, "local": null}`))
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.IsJSON() {
		t.Fatal("expected JSON")
	}
	if got := p.Get("kwh"); got != "12.5" {
		t.Errorf("Get(kwh) = %q", got)
	}
	if !p.Bool("isento") {
		t.Error("JSON true should be true")
	}
	if p.Has("local") {
		t.Error("null fields count as absent")
	}
	if string(p.GetRaw()) == "" {
		t.Error("raw body lost")
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	p := NewRequestBodyParser(jsonRequest(`{"kwh":`))
	if err := p.Parse(); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	// Parse is idempotent
	if err := p.Parse(); err == nil {
		t.Fatal("second Parse should return the same error")
	}
}

func TestRechargeFromValues(t *testing.T) {
	tests := []struct {
		name      string
		req       *http.Request
		wantField string
		check     func(t *testing.T, r core.Recharge)
	}{
		{
			name: "form with comma decimals",
			req:  formRequest("data=2025-03-01T18%3A30&kwh=10%2C5&custo=25%2C90&odometro=12000&isento=on&local=Shopping&observacoes=r%C3%A1pida"),
			check: func(t *testing.T, r core.Recharge) {
				want := time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC)
				if !r.Date.Equal(want) {
					t.Errorf("Date = %v, want %v", r.Date, want)
				}
				if r.KWh != 10.5 || r.Cost != 25.9 || r.Odometer != 12000 {
					t.Errorf("numbers = %v %v %v", r.KWh, r.Cost, r.Odometer)
				}
				if !r.Exempt || r.Location != "Shopping" || r.Notes != "rápida" {
					t.Errorf("unexpected recharge %+v", r)
				}
			},
		},
		{
			name: "json with import timestamp",
			req:  jsonRequest(`{"data":"2025-03-01 18:30:00","kwh":8,"custo":0,"odometro":500,"isento":"Sim"}`),
			check: func(t *testing.T, r core.Recharge) {
				if r.Date.Hour() != 18 || !r.Exempt || r.KWh != 8 {
					t.Errorf("unexpected recharge %+v", r)
				}
			},
		},
		{
			name:      "missing cost",
			req:       formRequest("data=2025-03-01T18%3A30&kwh=10&odometro=1"),
			wantField: "custo",
		},
		{
			name:      "bad date",
			req:       formRequest("data=ontem&kwh=10&custo=1&odometro=1"),
			wantField: "data",
		},
		{
			name:      "not a number",
			req:       formRequest("data=2025-03-01T18%3A30&kwh=dez&custo=1&odometro=1"),
			wantField: "kwh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewRequestBodyParser(tt.req)
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse: %v", err)
			}
			r, err := RechargeFromValues(p, core.Recharge{UserID: 3}, false)
			if tt.wantField != "" {
				var fe *FieldError
				if !errors.As(err, &fe) || fe.Field != tt.wantField {
					t.Fatalf("expected FieldError on %q, got %v", tt.wantField, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.UserID != 3 {
				t.Errorf("UserID = %d, want 3", r.UserID)
			}
			tt.check(t, r)
		})
	}
}

func TestRechargeFromValues_KeepsPartialInput(t *testing.T) {
	p := NewRequestBodyParser(formRequest("data=2025-03-01T18%3A30&kwh=7&custo=x&odometro=1&local=Casa"))
	_ = p.Parse()
	r, err := RechargeFromValues(p, core.Recharge{}, false)
	if err == nil {
		t.Fatal("expected error")
	}
	if r.KWh != 7 || r.Date.IsZero() {
		t.Fatalf("partial recharge lost: %+v", r)
	}
}

func TestRechargeFromValues_Merge(t *testing.T) {
	base := core.Recharge{
		ID:       9,
		UserID:   1,
		Date:     time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
		KWh:      10,
		Cost:     20,
		Odometer: 1000,
		Location: "Casa",
		Notes:    "antiga",
	}
	p := NewRequestBodyParser(jsonRequest(`{"custo": 35.5, "observacoes": "corrigida"}`))
	if err := p.Parse(); err != nil {
		t.Fatal(err)
	}
	r, err := RechargeFromValues(p, base, true)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if r.Cost != 35.5 || r.Notes != "corrigida" {
		t.Errorf("supplied fields not applied: %+v", r)
	}
	if r.KWh != 10 || r.Odometer != 1000 || r.Location != "Casa" || !r.Date.Equal(base.Date) || r.ID != 9 {
		t.Errorf("absent fields overwritten: %+v", r)
	}
}

func TestHistoryQuery(t *testing.T) {
	q := historyQuery(url.Values{
		"local":       {" Casa "},
		"observacoes": {"rápida"},
		"isento":      {"True"},
		"data_inicio": {"2025-01-01"},
		"data_fim":    {"2025-01-31"},
		"periodo":     {"30d"},
	})
	want := core.HistoryQuery{
		Location: "Casa",
		Notes:    "rápida",
		Exempt:   "True",
		From:     "2025-01-01",
		To:       "2025-01-31",
		Period:   "30d",
	}
	if q != want {
		t.Fatalf("historyQuery = %+v, want %+v", q, want)
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		value string
		want  int64
		ok    bool
	}{
		{"12", 12, true},
		{"0", 0, false},
		{"-3", -3, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/recharges/x/", nil)
		r.SetPathValue("id", tt.value)
		id, ok := pathID(r)
		if ok != tt.ok || (ok && id != tt.want) {
			t.Errorf("pathID(%q) = %d, %v", tt.value, id, ok)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  normal  ", "normal"},
		{"a\x00b\x07c", "abc"},
		{"linha1\nlinha2\ttab", "linha1\nlinha2\ttab"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFormOrFail(t *testing.T) {
	if resp := ParseFormOrFail(formRequest("a=1")); resp != nil {
		t.Fatal("valid form rejected")
	}
	bad := formRequest("%zz")
	resp := ParseFormOrFail(bad)
	if resp == nil {
		t.Fatal("malformed form accepted")
	}
	w := httptest.NewRecorder()
	resp.Write(w)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
