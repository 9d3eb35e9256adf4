// Command estimate runs one end-to-end solar estimate from the terminal:
// resolve a location, fetch building insights, pick a panel configuration,
// and print the financial projection. With -csv it writes the same report
// the HTTP service serves.
//
// Usage:
//
//	SOLAR_API_KEY=... go run ./cmd/estimate -lat 37.4449 -lng -122.1394
//	SOLAR_API_KEY=... MAPBOX_TOKEN=... go run ./cmd/estimate \
//	  -address "720 Wilson Ave, Palo Alto" -bill 150 -csv estimate.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/helioscope/solar-potential/internal/adapter/geocode"
	"github.com/helioscope/solar-potential/internal/adapter/solarapi"
	"github.com/helioscope/solar-potential/internal/config"
	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/observability"
	"github.com/helioscope/solar-potential/internal/report"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "estimate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	address := flag.String("address", "", "street address to estimate (needs MAPBOX_TOKEN)")
	lat := flag.Float64("lat", 0, "latitude, used with -lng instead of -address")
	lng := flag.Float64("lng", 0, "longitude")
	bill := flag.Float64("bill", 0, "average monthly electricity bill (overrides config default)")
	costPerKwh := flag.Float64("cost-per-kwh", 0, "energy cost per kWh (overrides config default)")
	panelWatts := flag.Float64("panel-watts", 0, "panel capacity in watts (overrides config default)")
	configID := flag.Int("config", -1, "panel configuration index to use instead of the recommended one")
	csvOut := flag.String("csv", "", "write the full report CSV to this path ('-' for stdout)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	ctx := context.Background()

	loc, place, err := resolveLocation(ctx, cfg, logger, metrics, *address, *lat, *lng)
	if err != nil {
		return err
	}

	solar := solarapi.NewClient(cfg, logger, metrics)
	insights, err := solar.BuildingInsights(ctx, loc)
	if err != nil {
		return err
	}

	params := domain.DefaultParams(
		cfg.DefaultMonthlyBill,
		cfg.DefaultEnergyCostPerKwh,
		cfg.DefaultPanelCapacityWatts,
	)
	if *bill > 0 {
		params.MonthlyBill = *bill
	}
	if *costPerKwh > 0 {
		params.EnergyCostPerKwh = *costPerKwh
	}
	if *panelWatts > 0 {
		params.PanelCapacityWatts = *panelWatts
	}
	if insights.SolarPotential.PanelCapacityWatts > 0 {
		params.ReferencePanelCapacityWatts = insights.SolarPotential.PanelCapacityWatts
	}

	configs := insights.SolarPotential.SolarPanelConfigs
	idx := *configID
	if idx < 0 {
		idx, err = domain.SelectConfig(configs, params.YearlyConsumptionKwh(), params.CapacityRatio(), params.DcToAcDerate)
		if err != nil {
			return err
		}
	} else if idx >= len(configs) {
		return fmt.Errorf("config %d out of range: building has %d configurations", idx, len(configs))
	}

	rpt, err := report.Build(insights, configs[idx], params, place)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, rpt, idx, len(configs))

	if *csvOut != "" {
		w := os.Stdout
		if *csvOut != "-" {
			f, err := os.Create(*csvOut)
			if err != nil {
				return fmt.Errorf("create csv: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := rpt.WriteCSV(w); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		if *csvOut != "-" {
			fmt.Printf("\nreport written to %s\n", *csvOut)
		}
	}
	return nil
}

func resolveLocation(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	metrics *observability.Metrics,
	address string,
	lat, lng float64,
) (domain.LatLng, string, error) {
	if address == "" {
		if lat == 0 && lng == 0 {
			return domain.LatLng{}, "", fmt.Errorf("either -address or -lat/-lng is required")
		}
		return domain.LatLng{Lat: lat, Lng: lng}, "", nil
	}

	if !cfg.MapboxEnabled {
		return domain.LatLng{}, "", fmt.Errorf("-address needs MAPBOX_TOKEN set")
	}
	geocoder := geocode.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
	result, err := geocoder.ForwardGeocode(ctx, address)
	if err != nil {
		return domain.LatLng{}, "", err
	}
	if result.FormattedAddress == "" {
		return domain.LatLng{}, "", fmt.Errorf("no match for %q", address)
	}
	return result.Location, result.FormattedAddress, nil
}

func printSummary(w io.Writer, rpt report.Report, idx, total int) {
	p := rpt.Projection

	fmt.Fprintf(w, "Building:        %s\n", rpt.BuildingName)
	if rpt.Address != "" {
		fmt.Fprintf(w, "Address:         %s\n", rpt.Address)
	}
	fmt.Fprintf(w, "Location:        %.6f, %.6f\n", rpt.Location.Lat, rpt.Location.Lng)
	fmt.Fprintf(w, "Imagery:         %s (%04d-%02d-%02d)\n",
		rpt.ImageryQuality, rpt.ImageryDate.Year, rpt.ImageryDate.Month, rpt.ImageryDate.Day)
	fmt.Fprintf(w, "Configuration:   %d of %d (%d panels, %.1f kW)\n",
		idx+1, total, rpt.PanelsCount, p.InstallationSizeKw)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Installation cost:     $%.2f\n", p.InstallationCostTotal)
	fmt.Fprintf(w, "Yearly consumption:    %.0f kWh\n", p.YearlyConsumptionKwh)
	fmt.Fprintf(w, "Year-1 production:     %.0f kWh\n", p.InitialProductionAcKwh)
	fmt.Fprintf(w, "Cost with solar:       $%.2f\n", p.TotalCostWithSolar)
	fmt.Fprintf(w, "Cost without solar:    $%.2f\n", p.TotalCostWithoutSolar)
	fmt.Fprintf(w, "Savings over %d years: $%.2f\n", len(p.YearlyProductionKwh), p.Savings)
	if p.BreakEvenYear == domain.BreakEvenNotReached {
		fmt.Fprintf(w, "Break even:            not reached\n")
	} else {
		fmt.Fprintf(w, "Break even:            year %d\n", p.BreakEvenYear)
	}
}
