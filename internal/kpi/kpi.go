// Package kpi turns a user's recharge history into the overall KPI set and
// the per-month series shown on the dashboard.
//
// Compute is pure: it reads the records and the optional comparison config
// and never fails. Every rate falls back to 0 when its denominator is 0.
package kpi

import (
	"sort"

	"github.com/shopspring/decimal"

	"recargas/internal/core"
)

// KPIs is the overall summary. Savings fields are nil when no usable
// comparison config exists. Values are not rounded.
type KPIs struct {
	Recharges         int      `json:"recargas"`
	ExemptCount       int      `json:"recargas_isentas_qtd"`
	PaidCount         int      `json:"recargas_pagas_qtd"`
	TotalKm           float64  `json:"total_km"`
	TotalKWh          float64  `json:"consumo_total_kwh"`
	KWhPer100Km       float64  `json:"consumo_por_100km"`
	TotalCost         float64  `json:"custo_total"`
	ExemptCost        float64  `json:"custo_isentas"`
	PaidCost          float64  `json:"custo_pagas"`
	CostPerKWh        float64  `json:"custo_medio_kwh"`
	CostPerKm         float64  `json:"custo_medio_km"`
	FuelCostPerKm     *float64 `json:"custo_gas_por_km"`
	FuelCostTotal     *float64 `json:"custo_gas_total"`
	SavingsTotal      *float64 `json:"economia_total"`
	SavingsTotalPerKm *float64 `json:"economia_total_por_km"`
	SavingsPaid       *float64 `json:"economia_pagas"`
	SavingsPaidPerKm  *float64 `json:"economia_pagas_por_km"`
}

// Month is one entry of the monthly series, rounded to 2 decimals.
type Month struct {
	Key          string
	Cost         float64
	PaidCost     float64
	PaidPercent  float64
	KWh          float64
	Km           float64
	KWhPer100Km  float64
	SavingsTotal float64
	SavingsPaid  float64
}

type CostSeries struct {
	Total   []float64 `json:"total"`
	Paid    []float64 `json:"pagas"`
	Percent []float64 `json:"percentual"`
}

type SavingsSeries struct {
	Total []float64 `json:"total"`
	Paid  []float64 `json:"pagas"`
}

// Report is the payload served to the charting front end.
type Report struct {
	KPIs        KPIs          `json:"kpis"`
	Labels      []string      `json:"labels"`
	Costs       CostSeries    `json:"custos"`
	KWh         []float64     `json:"consumo"`
	Km          []float64     `json:"km"`
	Savings     SavingsSeries `json:"economia"`
	KWhPer100Km []float64     `json:"consumo_por_100km"`

	Months    []Month `json:"-"`
	HasConfig bool    `json:"-"`
}

// Compute builds the report for one user's history. Records are ordered by
// date before use; cfg may be nil.
func Compute(records []core.Recharge, cfg *core.ComparisonConfig) Report {
	sorted := make([]core.Recharge, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	months := Monthly(sorted, cfg)
	r := Report{
		KPIs:        Overall(sorted, cfg),
		Months:      months,
		HasConfig:   cfg.Usable(),
		Labels:      make([]string, 0, len(months)),
		KWh:         make([]float64, 0, len(months)),
		Km:          make([]float64, 0, len(months)),
		KWhPer100Km: make([]float64, 0, len(months)),
		Costs: CostSeries{
			Total:   make([]float64, 0, len(months)),
			Paid:    make([]float64, 0, len(months)),
			Percent: make([]float64, 0, len(months)),
		},
		Savings: SavingsSeries{
			Total: make([]float64, 0, len(months)),
			Paid:  make([]float64, 0, len(months)),
		},
	}
	for _, m := range months {
		r.Labels = append(r.Labels, m.Key)
		r.Costs.Total = append(r.Costs.Total, m.Cost)
		r.Costs.Paid = append(r.Costs.Paid, m.PaidCost)
		r.Costs.Percent = append(r.Costs.Percent, m.PaidPercent)
		r.KWh = append(r.KWh, m.KWh)
		r.Km = append(r.Km, m.Km)
		r.KWhPer100Km = append(r.KWhPer100Km, m.KWhPer100Km)
		r.Savings.Total = append(r.Savings.Total, m.SavingsTotal)
		r.Savings.Paid = append(r.Savings.Paid, m.SavingsPaid)
	}
	return r
}

// Overall computes the summary over chronologically ordered records.
func Overall(records []core.Recharge, cfg *core.ComparisonConfig) KPIs {
	var k KPIs
	k.Recharges = len(records)

	for _, r := range records {
		k.TotalCost += r.Cost
		k.TotalKWh += r.KWh
		if r.Exempt {
			k.ExemptCount++
			k.ExemptCost += r.Cost
		} else {
			k.PaidCost += r.Cost
		}
	}
	k.PaidCount = k.Recharges - k.ExemptCount

	// a single reading carries no distance information
	if len(records) >= 2 {
		k.TotalKm = records[len(records)-1].Odometer - records[0].Odometer
	}

	k.KWhPer100Km = ratio(k.TotalKWh, k.TotalKm) * 100
	k.CostPerKWh = ratio(k.TotalCost, k.TotalKWh)
	k.CostPerKm = ratio(k.TotalCost, k.TotalKm)

	if cfg.Usable() {
		fuelTotal := cfg.FuelCost(k.TotalKm)
		savingsTotal := fuelTotal - k.TotalCost
		savingsPaid := fuelTotal - k.PaidCost

		k.FuelCostPerKm = ptr(cfg.FuelCostPerKm())
		k.FuelCostTotal = ptr(fuelTotal)
		k.SavingsTotal = ptr(savingsTotal)
		k.SavingsTotalPerKm = ptr(ratio(savingsTotal, k.TotalKm))
		k.SavingsPaid = ptr(savingsPaid)
		k.SavingsPaidPerKm = ptr(ratio(savingsPaid, k.TotalKm))
	}
	return k
}

type bucket struct {
	cost, paid, kwh float64
	odometers       []float64
}

// Monthly groups records by YYYY-MM and returns the months in ascending order.
func Monthly(records []core.Recharge, cfg *core.ComparisonConfig) []Month {
	buckets := make(map[string]*bucket)
	for _, r := range records {
		key := r.Month()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.cost += r.Cost
		b.kwh += r.KWh
		b.odometers = append(b.odometers, r.Odometer)
		if !r.Exempt {
			b.paid += r.Cost
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	months := make([]Month, 0, len(keys))
	for i, key := range keys {
		b := buckets[key]
		sort.Float64s(b.odometers)

		km := monthDistance(b.odometers, previousReading(buckets, keys[:i]))

		kwh := round2(b.kwh)
		m := Month{
			Key:         key,
			Cost:        round2(b.cost),
			PaidCost:    round2(b.paid),
			PaidPercent: round2(ratio(b.paid, b.cost) * 100),
			KWh:         kwh,
			Km:          round2(km),
		}
		if km > 0 {
			m.KWhPer100Km = round2(kwh / km * 100)
		}
		if cfg.Usable() {
			fuel := cfg.FuelCost(km)
			m.SavingsTotal = round2(fuel - b.cost)
			m.SavingsPaid = round2(fuel - b.paid)
		}
		months = append(months, m)
	}
	return months
}

// monthDistance applies the monthly distance policy to sorted readings.
// prev is the highest reading of the nearest earlier month, or nil.
func monthDistance(readings []float64, prev *float64) float64 {
	var km float64
	switch {
	case len(readings) >= 2:
		km = readings[len(readings)-1] - readings[0]
	case len(readings) == 1 && prev != nil:
		km = readings[0] - *prev
	}
	if km < 0 {
		return 0
	}
	return km
}

func previousReading(buckets map[string]*bucket, earlier []string) *float64 {
	for i := len(earlier) - 1; i >= 0; i-- {
		odos := buckets[earlier[i]].odometers
		if len(odos) > 0 {
			v := odos[len(odos)-1]
			return &v
		}
	}
	return nil
}

func ratio(num, den float64) float64 {
	if den > 0 {
		return num / den
	}
	return 0
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func ptr(v float64) *float64 { return &v }
