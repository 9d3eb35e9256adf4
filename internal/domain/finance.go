package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// FinancialParams are the user-tunable economic inputs of a projection.
// All fields are independently editable; Validate enforces their ranges.
type FinancialParams struct {
	// MonthlyBill is the average monthly electricity bill before solar.
	MonthlyBill float64 `json:"monthlyBill"`
	// EnergyCostPerKwh is the current utility price per kWh.
	EnergyCostPerKwh float64 `json:"energyCostPerKwh"`
	// PanelCapacityWatts is the wattage of the panels being installed.
	PanelCapacityWatts float64 `json:"panelCapacityWatts"`
	// ReferencePanelCapacityWatts is the wattage the API's precomputed
	// yields assume. Yields are rescaled by the ratio of the two.
	ReferencePanelCapacityWatts float64 `json:"referencePanelCapacityWatts"`
	// DcToAcDerate is the fraction of DC output delivered as AC power.
	DcToAcDerate float64 `json:"dcToAcDerate"`
	// SolarIncentivePercent is the fraction of the installation cost
	// recovered through incentives, in [0, 1).
	SolarIncentivePercent float64 `json:"solarIncentivePercent"`
	// InstallationCostPerWatt is the installed cost per DC watt.
	InstallationCostPerWatt float64 `json:"installationCostPerWatt"`
	// InstallationLifeSpan is the projection horizon in years.
	InstallationLifeSpan int `json:"installationLifeSpan"`
	// EfficiencyDecayFactor is the year-over-year panel output retention,
	// in (0, 1]. 0.995 means half a percent of output lost per year.
	EfficiencyDecayFactor float64 `json:"efficiencyDecayFactor"`
	// CostIncreaseFactor is the yearly utility price inflation factor.
	CostIncreaseFactor float64 `json:"costIncreaseFactor"`
	// DiscountRate discounts future cash flows to present value.
	DiscountRate float64 `json:"discountRate"`
}

// DefaultParams builds the starting parameter set for a fresh session. The
// bill, energy price, and panel wattage come from deployment configuration;
// the remaining factors are industry-standard assumptions a user can edit.
func DefaultParams(monthlyBill, energyCostPerKwh, panelCapacityWatts float64) FinancialParams {
	return FinancialParams{
		MonthlyBill:                 monthlyBill,
		EnergyCostPerKwh:            energyCostPerKwh,
		PanelCapacityWatts:          panelCapacityWatts,
		ReferencePanelCapacityWatts: panelCapacityWatts,
		DcToAcDerate:                0.85,
		SolarIncentivePercent:       0.26,
		InstallationCostPerWatt:     4.0,
		InstallationLifeSpan:        20,
		EfficiencyDecayFactor:       0.995,
		CostIncreaseFactor:          1.022,
		DiscountRate:                1.04,
	}
}

// Validate checks every parameter range. It reports the first violation.
func (p FinancialParams) Validate() error {
	switch {
	case p.MonthlyBill <= 0:
		return errors.New("monthly bill must be positive")
	case p.EnergyCostPerKwh <= 0:
		return errors.New("energy cost per kWh must be positive")
	case p.PanelCapacityWatts <= 0:
		return errors.New("panel capacity watts must be positive")
	case p.DcToAcDerate <= 0 || p.DcToAcDerate > 1:
		return errors.New("dc to ac derate must be in (0, 1]")
	case p.SolarIncentivePercent < 0 || p.SolarIncentivePercent >= 1:
		return errors.New("solar incentive percent must be in [0, 1)")
	case p.InstallationCostPerWatt <= 0:
		return errors.New("installation cost per watt must be positive")
	case p.InstallationLifeSpan <= 0:
		return errors.New("installation life span must be positive")
	case p.EfficiencyDecayFactor <= 0 || p.EfficiencyDecayFactor > 1:
		return errors.New("efficiency decay factor must be in (0, 1]")
	case p.CostIncreaseFactor <= 0:
		return errors.New("cost increase factor must be positive")
	case p.DiscountRate <= 0:
		return errors.New("discount rate must be positive")
	}
	return nil
}

// CapacityRatio is the chosen panel wattage over the API's reference wattage.
// Falls back to 1 when no reference is known.
func (p FinancialParams) CapacityRatio() float64 {
	if p.ReferencePanelCapacityWatts <= 0 {
		return 1
	}
	return p.PanelCapacityWatts / p.ReferencePanelCapacityWatts
}

// YearlyConsumptionKwh derives the household's yearly consumption from the
// monthly bill and the current energy price.
func (p FinancialParams) YearlyConsumptionKwh() float64 {
	return p.MonthlyBill / p.EnergyCostPerKwh * 12
}

// BreakEvenNotReached is the break-even sentinel for projections whose
// cumulative solar cost never drops below the cumulative utility cost.
const BreakEvenNotReached = -1

// Projection is the full year-by-year cost/savings result for one panel
// configuration under one set of financial parameters. The exported report
// consumes this struct unchanged, so displayed and exported figures can
// never drift apart.
type Projection struct {
	PanelsCount            int       `json:"panelsCount"`
	InstallationSizeKw     float64   `json:"installationSizeKw"`
	InstallationCostTotal  float64   `json:"installationCostTotal"`
	YearlyConsumptionKwh   float64   `json:"yearlyConsumptionKwh"`
	InitialProductionAcKwh float64   `json:"initialProductionAcKwh"`
	YearlyProductionKwh    []float64 `json:"yearlyProductionKwh"`
	YearlyBillWithSolar    []float64 `json:"yearlyBillWithSolar"`
	YearlyCostWithoutSolar []float64 `json:"yearlyCostWithoutSolar"`
	TotalCostWithSolar     float64   `json:"totalCostWithSolar"`
	TotalCostWithoutSolar  float64   `json:"totalCostWithoutSolar"`
	Savings                float64   `json:"savings"`
	// BreakEvenYear is the first year index where cumulative cost with solar
	// drops to or below cumulative cost without, or BreakEvenNotReached.
	BreakEvenYear int       `json:"breakEvenYear"`
	ComputedAt    time.Time `json:"computedAt"`
}

// Project computes the cost/savings series for one configuration. It is a
// pure function of its inputs (aside from the ComputedAt stamp taken from
// the package clock): any change to the configuration or a parameter re-runs
// the whole computation rather than patching part of a previous result.
func Project(config SolarPanelConfig, params FinancialParams) (Projection, error) {
	if err := params.Validate(); err != nil {
		return Projection{}, fmt.Errorf("financial params: %w", err)
	}

	years := params.InstallationLifeSpan

	installationSizeKw := float64(config.PanelsCount) * params.PanelCapacityWatts / 1000
	installationCost := params.InstallationCostPerWatt * installationSizeKw * 1000
	initialProductionAc := config.YearlyEnergyDcKwh * params.CapacityRatio() * params.DcToAcDerate
	yearlyConsumption := params.YearlyConsumptionKwh()

	production := make([]float64, years)
	billWithSolar := make([]float64, years)
	costWithoutSolar := make([]float64, years)

	var billSum, withoutSum float64
	for y := 0; y < years; y++ {
		production[y] = initialProductionAc * math.Pow(params.EfficiencyDecayFactor, float64(y))

		discount := math.Pow(params.CostIncreaseFactor, float64(y)) / math.Pow(params.DiscountRate, float64(y))

		// A surplus-production year costs nothing; excess energy is not
		// credited here. Deliberate simplification, not net metering.
		bill := (yearlyConsumption - production[y]) * params.EnergyCostPerKwh * discount
		billWithSolar[y] = math.Max(0, bill)
		billSum += billWithSolar[y]

		costWithoutSolar[y] = params.MonthlyBill * 12 * discount
		withoutSum += costWithoutSolar[y]
	}

	netInstallationCost := installationCost - installationCost*params.SolarIncentivePercent
	totalWithSolar := installationCost + billSum - installationCost*params.SolarIncentivePercent
	breakEven := breakEvenYear(netInstallationCost, billWithSolar, costWithoutSolar)

	return Projection{
		PanelsCount:            config.PanelsCount,
		InstallationSizeKw:     installationSizeKw,
		InstallationCostTotal:  installationCost,
		YearlyConsumptionKwh:   yearlyConsumption,
		InitialProductionAcKwh: initialProductionAc,
		YearlyProductionKwh:    production,
		YearlyBillWithSolar:    billWithSolar,
		YearlyCostWithoutSolar: costWithoutSolar,
		TotalCostWithSolar:     totalWithSolar,
		TotalCostWithoutSolar:  withoutSum,
		Savings:                withoutSum - totalWithSolar,
		BreakEvenYear:          breakEven,
		ComputedAt:             clock.Now().UTC(),
	}, nil
}

// breakEvenYear walks the two cumulative cost curves year by year. The first
// year carries the full net installation cost on the solar side.
func breakEvenYear(netInstallationCost float64, withSolar, withoutSolar []float64) int {
	cumWith := netInstallationCost
	cumWithout := 0.0
	for y := range withSolar {
		cumWith += withSolar[y]
		cumWithout += withoutSolar[y]
		if cumWith <= cumWithout {
			return y
		}
	}
	return BreakEvenNotReached
}
