// Package csvimport validates recharge spreadsheets exported by users.
//
// Parse never fails: problems with the file or with individual rows are
// collected as messages and the valid rows are returned alongside them.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"recargas/internal/core"
)

// RequiredHeaders are the normalized column names every import needs.
var RequiredHeaders = []string{"data", "kwh", "custo", "isento", "odometro"}

const (
	headerNotes    = "observacoes"
	headerLocation = "local"
)

const (
	msgNoHeader     = "Arquivo CSV sem cabeçalho."
	msgNoValidRows  = "Nenhuma linha válida encontrada no CSV."
	msgEmptyDate    = "Campo 'data' vazio."
	msgInvalidDate  = "Formato de data inválido (Use AAAA-MM-DD HH:MM)."
	msgBadHeaderFmt = "Cabeçalhos inválidos. Esperados: %s. Ausentes: %s"
)

// Result holds the outcome of a parse. Records and Errors may both be
// non-empty; callers decide whether partial files are acceptable.
type Result struct {
	Records   []core.Recharge
	Errors    []string
	Delimiter rune
}

// OK reports whether the file produced no errors.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// ParseReader reads everything from rd and parses it.
func ParseReader(rd io.Reader) Result {
	raw, err := io.ReadAll(rd)
	if err != nil {
		return Result{Errors: []string{fmt.Sprintf("Erro ao ler arquivo: %v", err)}}
	}
	return Parse(raw)
}

// Parse validates raw file contents.
func Parse(raw []byte) Result {
	text := Decode(raw)
	res := Result{Delimiter: DetectDelimiter(text)}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = res.Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			res.Errors = []string{msgNoHeader}
		} else {
			res.Errors = []string{fmt.Sprintf("Erro ao preparar leitor CSV: %v", err)}
		}
		return res
	}
	for i := range header {
		header[i] = NormalizeHeader(header[i])
	}
	if missing := missingHeaders(header); len(missing) > 0 {
		res.Errors = []string{fmt.Sprintf(msgBadHeaderFmt,
			strings.Join(RequiredHeaders, ", "), strings.Join(missing, ", "))}
		return res
	}

	line := 1
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Linha %d: erro inesperado: %v", line, err))
			continue
		}

		row := toRow(header, fields)
		if row.blank() {
			continue
		}
		rec, err := row.recharge()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Linha %d: %v", line, err))
			continue
		}
		res.Records = append(res.Records, rec)
	}

	if len(res.Records) == 0 && len(res.Errors) == 0 {
		res.Errors = []string{msgNoValidRows}
	}
	return res
}

func missingHeaders(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, h := range RequiredHeaders {
		if !present[h] {
			missing = append(missing, h)
		}
	}
	return missing
}

// row maps normalized header names to cell values. Duplicate columns keep
// the rightmost value; short rows leave the tail columns empty.
type row map[string]string

func toRow(header, fields []string) row {
	out := make(row, len(header))
	for i, h := range header {
		if i < len(fields) {
			out[h] = fields[i]
		} else if _, ok := out[h]; !ok {
			out[h] = ""
		}
	}
	return out
}

func (r row) blank() bool {
	for _, h := range RequiredHeaders {
		if strings.TrimSpace(r[h]) != "" {
			return false
		}
	}
	return true
}

func (r row) recharge() (core.Recharge, error) {
	dateStr := strings.TrimSpace(r["data"])
	if dateStr == "" {
		return core.Recharge{}, errors.New(msgEmptyDate)
	}
	date, err := ParseTimestamp(dateStr)
	if err != nil {
		return core.Recharge{}, errors.New(msgInvalidDate)
	}

	rec := core.Recharge{
		Date:     date,
		Exempt:   core.ParseFlag(r["isento"]),
		Notes:    strings.TrimSpace(r[headerNotes]),
		Location: strings.TrimSpace(r[headerLocation]),
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"kwh", &rec.KWh},
		{"custo", &rec.Cost},
		{"odometro", &rec.Odometer},
	} {
		v, err := core.ParseDecimal(r[f.name])
		if err != nil {
			return core.Recharge{}, fmt.Errorf("valor numérico inválido em '%s': %q", f.name, r[f.name])
		}
		*f.dst = v
	}
	return rec, nil
}

var timestampLayouts = []string{
	"2006-01-02",
	"20060102",
	"2006-01-02T15",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
}

// ParseTimestamp accepts ISO-8601 dates and date-times, with a space
// allowed in place of the "T" separator. Values with a zone offset are
// converted to UTC; naive values are taken as UTC wall time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "T")
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
