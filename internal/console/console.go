// Package console renders CLI output: status lines, tables and the KPI report.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"recargas/internal/core"
	"recargas/internal/kpi"
	"recargas/internal/locale"
)

var (
	Bold  = color.New(color.Bold).SprintFunc()
	Green = color.New(color.FgGreen, color.Bold).SprintFunc()
	Red   = color.New(color.FgRed, color.Bold).SprintFunc()
	Cyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Console writes human output. Status lines go through pterm printers.
type Console struct {
	out io.Writer
}

func New(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

func (c *Console) Info(format string, a ...any)    { pterm.Info.WithWriter(c.out).Printfln(format, a...) }
func (c *Console) Warning(format string, a ...any) { pterm.Warning.WithWriter(c.out).Printfln(format, a...) }
func (c *Console) Error(format string, a ...any)   { pterm.Error.WithWriter(c.out).Printfln(format, a...) }
func (c *Console) Success(format string, a ...any) { pterm.Success.WithWriter(c.out).Printfln(format, a...) }

func (c *Console) Println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

// Table collects rows and renders them boxed.
type Table struct {
	columns []string
	rows    [][]string
}

func NewTable(columns ...string) *Table {
	return &Table{columns: columns}
}

func (t *Table) AddRow(cells ...any) {
	row := make([]string, len(cells))
	for i, cell := range cells {
		row[i] = fmt.Sprint(cell)
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Render() string {
	data := pterm.TableData{t.columns}
	data = append(data, t.rows...)
	out, _ := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(data).
		Srender()
	return out
}

// Report renders the overall KPIs and the monthly series.
func Report(rep kpi.Report, f locale.Formatter) string {
	k := rep.KPIs
	var b strings.Builder

	summary := NewTable("KPI", "Valor")
	summary.AddRow("Recargas", fmt.Sprintf("%s (%s isentas, %s pagas)",
		humanize.Comma(int64(k.Recharges)), humanize.Comma(int64(k.ExemptCount)), humanize.Comma(int64(k.PaidCount))))
	summary.AddRow("Distância", f.Number(k.TotalKm, 1)+" km")
	summary.AddRow("Consumo", f.Number(k.TotalKWh, 2)+" kWh")
	summary.AddRow("kWh/100 km", f.Number(k.KWhPer100Km, 2))
	summary.AddRow("Custo total", f.Money(k.TotalCost))
	summary.AddRow("Custo pagas", f.Money(k.PaidCost))
	summary.AddRow("Custo por kWh", f.Money(k.CostPerKWh))
	summary.AddRow("Custo por km", f.Money(k.CostPerKm))
	if k.SavingsTotal != nil {
		summary.AddRow("Gasolina equivalente", f.Money(*k.FuelCostTotal))
		summary.AddRow("Economia total", signed(*k.SavingsTotal, f))
		summary.AddRow("Economia pagas", signed(*k.SavingsPaid, f))
	}
	b.WriteString(summary.Render())
	b.WriteString("\n")

	if len(rep.Months) == 0 {
		return b.String()
	}

	maxCost := 0.0
	for _, m := range rep.Months {
		if m.Cost > maxCost {
			maxCost = m.Cost
		}
	}
	monthly := NewTable("Mês", "Custo", "", "Pagas %", "kWh", "km", "kWh/100 km")
	for _, m := range rep.Months {
		monthly.AddRow(m.Key, f.Money(m.Cost), bar(m.Cost, maxCost, 24),
			f.Number(m.PaidPercent, 1), f.Number(m.KWh, 2), f.Number(m.Km, 1), f.Number(m.KWhPer100Km, 2))
	}
	b.WriteString(monthly.Render())
	return b.String()
}

// Users renders the admin user listing.
func Users(users []core.UserSummary) string {
	t := NewTable("ID", "Usuário", "E-mail", "Staff", "Nº Recargas", "Último acesso")
	for _, u := range users {
		last := "-"
		if !u.LastLogin.IsZero() {
			last = humanize.Time(u.LastLogin)
		}
		staff := ""
		if u.IsStaff {
			staff = Cyan("sim")
		}
		t.AddRow(u.ID, u.Username, u.Email, staff, humanize.Comma(int64(u.Recharges)), last)
	}
	return t.Render()
}

func signed(v float64, f locale.Formatter) string {
	if v < 0 {
		return Red(f.Money(v))
	}
	return Green(f.Money(v))
}

func bar(v, max float64, width int) string {
	if max <= 0 || v <= 0 {
		return ""
	}
	n := int(v / max * float64(width))
	if n == 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}
