package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"recargas/internal/core"
	"recargas/internal/kpi"
	"recargas/internal/locale"
)

var (
	headerColor     = []int{33, 97, 140}
	headerTextColor = []int{255, 255, 255}
	bodyTextColor   = []int{40, 40, 40}
	lineColor       = []int{200, 200, 200}
)

// PDFInput is what a report document shows.
type PDFInput struct {
	Title     string
	Generated time.Time
	Report    kpi.Report
	Recharges []core.Recharge
	Format    locale.Formatter
}

// WritePDF renders a summary page, the monthly table and the recharge list.
func WritePDF(w io.Writer, in PDFInput) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	f := in.Format

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("Gerado em %s", f.Date(in.Generated))), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 10, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFillColor(headerColor[0], headerColor[1], headerColor[2])
	pdf.SetTextColor(headerTextColor[0], headerTextColor[1], headerTextColor[2])
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 12, tr("  "+in.Title), "", 1, "L", true, 0, "")
	pdf.Ln(6)

	k := in.Report.KPIs
	section(pdf, tr, "Resumo")
	summary := [][2]string{
		{"Recargas", fmt.Sprintf("%d (%d isentas, %d pagas)", k.Recharges, k.ExemptCount, k.PaidCount)},
		{"Distância", f.Number(k.TotalKm, 1) + " km"},
		{"Consumo", f.Number(k.TotalKWh, 2) + " kWh"},
		{"Consumo por 100 km", f.Number(k.KWhPer100Km, 2) + " kWh"},
		{"Custo total", f.Money(k.TotalCost)},
		{"Custo pagas", f.Money(k.PaidCost)},
		{"Custo médio por kWh", f.Money(k.CostPerKWh)},
		{"Custo médio por km", f.Money(k.CostPerKm)},
	}
	if k.SavingsTotal != nil {
		summary = append(summary,
			[2]string{"Custo equivalente em gasolina", f.Money(*k.FuelCostTotal)},
			[2]string{"Economia total", f.Money(*k.SavingsTotal)},
			[2]string{"Economia pagas", f.Money(*k.SavingsPaid)},
		)
	}
	pdf.SetFont("Arial", "", 10)
	for _, row := range summary {
		pdf.CellFormat(70, 6, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	section(pdf, tr, "Mensal")
	table(pdf, tr,
		[]string{"Mês", "Custo", "Pagas", "kWh", "km", "kWh/100km"},
		[]float64{30, 32, 32, 30, 30, 36},
		monthRows(in.Report.Months, f))
	pdf.Ln(6)

	if len(in.Recharges) > 0 {
		section(pdf, tr, "Recargas")
		table(pdf, tr,
			[]string{"Data", "Local", "kWh", "Custo", "Odômetro", "Isento"},
			[]float64{36, 50, 22, 30, 30, 22},
			rechargeRows(in.Recharges, f))
	}

	return pdf.Output(w)
}

func section(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(headerColor[0], headerColor[1], headerColor[2])
	pdf.Cell(0, 8, tr(title))
	pdf.Ln(7)
	pdf.SetDrawColor(lineColor[0], lineColor[1], lineColor[2])
	pdf.Line(pdf.GetX(), pdf.GetY(), pdf.GetX()+190, pdf.GetY())
	pdf.Ln(3)
	pdf.SetTextColor(bodyTextColor[0], bodyTextColor[1], bodyTextColor[2])
}

func table(pdf *gofpdf.Fpdf, tr func(string) string, header []string, widths []float64, rows [][]string) {
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(240, 240, 240)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, tr(h), "B", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		for i, cell := range row {
			pdf.CellFormat(widths[i], 6, tr(cell), "", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func monthRows(months []kpi.Month, f locale.Formatter) [][]string {
	rows := make([][]string, 0, len(months))
	for _, m := range months {
		rows = append(rows, []string{
			m.Key,
			f.Money(m.Cost),
			f.Money(m.PaidCost),
			f.Number(m.KWh, 2),
			f.Number(m.Km, 1),
			f.Number(m.KWhPer100Km, 2),
		})
	}
	return rows
}

func rechargeRows(recs []core.Recharge, f locale.Formatter) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		exempt := "Não"
		if r.Exempt {
			exempt = "Sim"
		}
		rows = append(rows, []string{
			r.Date.Format(dateLayout),
			truncate(r.Location, 28),
			f.Number(r.KWh, 2),
			f.Money(r.Cost),
			f.Number(r.Odometer, 0),
			exempt,
		})
	}
	return rows
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
