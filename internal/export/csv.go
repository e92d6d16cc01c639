// Package export renders recharge histories and reports as CSV, JSON and PDF
// and ships them to object storage.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"recargas/internal/core"
	"recargas/internal/kpi"
)

const (
	dateLayout = "2006-01-02 15:04"

	filteredName = "recharge_export_filtered.csv"
	completeName = "recharge_export_complete.csv"
)

// CSVHeader is the first line of every CSV export.
var CSVHeader = []string{"Data", "Local", "kWh", "Custo", "Odometro", "Isento", "Observacoes"}

// Filename names the CSV download of the history page.
func Filename(filtered bool) string {
	if filtered {
		return filteredName
	}
	return completeName
}

// WriteCSV writes recs in the given order.
func WriteCSV(w io.Writer, recs []core.Recharge) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range recs {
		record := []string{
			r.Date.Format(dateLayout),
			r.Location,
			formatFloat(r.KWh),
			formatFloat(r.Cost),
			formatFloat(r.Odometer),
			formatBool(r.Exempt),
			r.Notes,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write recharge %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the report indented, as the monthly API serves it.
func WriteJSON(w io.Writer, rep kpi.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// formatFloat always keeps a fractional part so whole numbers read "12.0".
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
