// Package report assembles the downloadable estimate summary. It reuses the
// projection exactly as computed for display; nothing is recomputed with
// different rounding on the way out.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/helioscope/solar-potential/internal/domain"
)

// Report is one exportable estimate: the building and imagery metadata next
// to the full financial projection.
type Report struct {
	Address        string
	BuildingName   string
	Location       domain.LatLng
	ImageryQuality string
	ImageryDate    domain.Date

	PanelsCount int
	Params      domain.FinancialParams
	Projection  domain.Projection
}

// Build computes the projection for the selected configuration and wraps it
// with the building metadata.
func Build(insights domain.BuildingInsights, config domain.SolarPanelConfig, params domain.FinancialParams, address string) (Report, error) {
	projection, err := domain.Project(config, params)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Address:        address,
		BuildingName:   insights.Name,
		Location:       insights.Center,
		ImageryQuality: insights.ImageryQuality,
		ImageryDate:    insights.ImageryDate,
		PanelsCount:    config.PanelsCount,
		Params:         params,
		Projection:     projection,
	}, nil
}

// Filename derives the download name from the place, the panel count, and
// the generation date. The same inputs always produce the same name.
func Filename(place string, panels int, date time.Time) string {
	slug := slugify(place)
	if slug == "" {
		slug = "location"
	}
	return fmt.Sprintf("solar-estimate-%s-%dp-%s.csv", slug, panels, date.UTC().Format("2006-01-02"))
}

// WriteCSV encodes the report: a metadata preamble, a summary block, and the
// year-by-year series.
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	p := r.Projection
	rows := [][]string{
		{"address", r.Address},
		{"building", r.BuildingName},
		{"latitude", formatFloat(r.Location.Lat)},
		{"longitude", formatFloat(r.Location.Lng)},
		{"imagery_quality", r.ImageryQuality},
		{"imagery_date", r.ImageryDate.Time().Format("2006-01-02")},
		{"generated_at", p.ComputedAt.Format(time.RFC3339)},
		{},
		{"panels_count", strconv.Itoa(p.PanelsCount)},
		{"installation_size_kw", formatFloat(p.InstallationSizeKw)},
		{"installation_cost_total", formatFloat(p.InstallationCostTotal)},
		{"yearly_consumption_kwh", formatFloat(p.YearlyConsumptionKwh)},
		{"initial_production_ac_kwh", formatFloat(p.InitialProductionAcKwh)},
		{"total_cost_with_solar", formatFloat(p.TotalCostWithSolar)},
		{"total_cost_without_solar", formatFloat(p.TotalCostWithoutSolar)},
		{"savings", formatFloat(p.Savings)},
		{"break_even_year", strconv.Itoa(p.BreakEvenYear)},
		{},
		{"year", "production_kwh", "bill_with_solar", "cost_without_solar"},
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	for y := range p.YearlyProductionKwh {
		err := cw.Write([]string{
			strconv.Itoa(y),
			formatFloat(p.YearlyProductionKwh[y]),
			formatFloat(p.YearlyBillWithSolar[y]),
			formatFloat(p.YearlyCostWithoutSolar[y]),
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// slugify lowercases and collapses everything outside [a-z0-9] into single
// hyphens.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
