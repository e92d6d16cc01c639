// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Recharge forms and the JSON API share the same field names, so one parser
// serves both.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"recargas/internal/core"
	"recargas/internal/csvimport"
)

// Recharge field names, shared by the HTML forms and the JSON API.
const (
	fieldDate     = "data"
	fieldKWh      = "kwh"
	fieldCost     = "custo"
	fieldExempt   = "isento"
	fieldOdometer = "odometro"
	fieldNotes    = "observacoes"
	fieldLocation = "local"
)

// formDateLayout is what <input type="datetime-local"> submits.
const formDateLayout = "2006-01-02T15:04"

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(r.Body)
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Secret returns a value untouched, for passwords.
func (p *RequestBodyParser) Secret(key string) string {
	if p.jsonData != nil {
		v, _ := p.jsonData[key].(string)
		return v
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

// Has reports whether the field was supplied at all. PUT uses it to merge.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		return ok && v != nil
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Bool interprets a checkbox ("on") or a JSON boolean.
func (p *RequestBodyParser) Bool(key string) bool {
	if p.jsonData != nil {
		if b, ok := p.jsonData[key].(bool); ok {
			return b
		}
	}
	v := p.Get(key)
	if strings.EqualFold(v, "on") {
		return true
	}
	return core.ParseFlag(v)
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return ""
	}
}

// FieldError names the recharge field that could not be read.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

var errRequired = errors.New("campo obrigatório")

// RechargeFromValues reads recharge fields into base. With merge set, only
// the fields present in the body are overwritten; otherwise date, kWh, cost
// and odometer are required.
func RechargeFromValues(p *RequestBodyParser, base core.Recharge, merge bool) (core.Recharge, error) {
	r := base

	if p.Has(fieldDate) || !merge {
		t, err := parseRechargeDate(p.Get(fieldDate))
		if err != nil {
			return r, &FieldError{Field: fieldDate, Err: err}
		}
		r.Date = t
	}

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{fieldKWh, &r.KWh},
		{fieldCost, &r.Cost},
		{fieldOdometer, &r.Odometer},
	} {
		if merge && !p.Has(f.name) {
			continue
		}
		raw := p.Get(f.name)
		if raw == "" {
			return r, &FieldError{Field: f.name, Err: errRequired}
		}
		v, err := core.ParseDecimal(raw)
		if err != nil {
			return r, &FieldError{Field: f.name, Err: err}
		}
		*f.dst = v
	}

	if p.Has(fieldExempt) || !merge {
		r.Exempt = p.Bool(fieldExempt)
	}
	if p.Has(fieldNotes) || !merge {
		r.Notes = p.Get(fieldNotes)
	}
	if p.Has(fieldLocation) || !merge {
		r.Location = p.Get(fieldLocation)
	}
	return r, nil
}

func parseRechargeDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errRequired
	}
	if t, err := time.Parse(formDateLayout, s); err == nil {
		return t, nil
	}
	return csvimport.ParseTimestamp(s)
}

// historyQuery reads the history filters from the query string.
func historyQuery(q url.Values) core.HistoryQuery {
	return core.HistoryQuery{
		Location: sanitizeInput(q.Get("local")),
		Notes:    sanitizeInput(q.Get("observacoes")),
		Exempt:   strings.TrimSpace(q.Get("isento")),
		From:     strings.TrimSpace(q.Get("data_inicio")),
		To:       strings.TrimSpace(q.Get("data_fim")),
		Period:   strings.TrimSpace(q.Get("periodo")),
	}
}

// pathID parses the {id} wildcard. ok is false for non-numeric ids.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Formato de requisição inválido.")
	}
	return nil
}
