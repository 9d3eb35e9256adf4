package session

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/layers"
	"github.com/helioscope/solar-potential/internal/observability"
)

func testParams() domain.FinancialParams {
	return domain.FinancialParams{
		MonthlyBill:                 120,
		EnergyCostPerKwh:            0.3,
		PanelCapacityWatts:          400,
		ReferencePanelCapacityWatts: 400,
		DcToAcDerate:                0.85,
		SolarIncentivePercent:       0.5,
		InstallationCostPerWatt:     2.5,
		InstallationLifeSpan:        20,
		EfficiencyDecayFactor:       0.995,
		CostIncreaseFactor:          1.025,
		DiscountRate:                1.03,
	}
}

func testInsights(yields ...float64) *domain.BuildingInsights {
	configs := make([]domain.SolarPanelConfig, len(yields))
	for i, y := range yields {
		configs[i] = domain.SolarPanelConfig{PanelsCount: (i + 1) * 4, YearlyEnergyDcKwh: y}
	}
	return &domain.BuildingInsights{
		Name:   "buildings/test",
		Center: domain.LatLng{Lat: 37.4449, Lng: -122.1394},
		SolarPotential: domain.SolarPotential{
			PanelCapacityWatts: 400,
			SolarPanelConfigs:  configs,
		},
	}
}

func testStore() *Store {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(testParams(), logger, observability.NewMetricsForTesting())
}

func TestStore_InitialState(t *testing.T) {
	s := testStore()
	state := s.Snapshot()

	assert.Nil(t, state.Location)
	assert.Nil(t, state.Insights)
	assert.Equal(t, -1, state.ConfigID)
	assert.False(t, state.Overridden)
	assert.Equal(t, layers.KindAnnualFlux, state.LayerKind)

	_, err := s.SelectedConfig()
	require.ErrorIs(t, err, domain.ErrNoConfigurations)
}

func TestStore_SetInsightsSelectsConfig(t *testing.T) {
	s := testStore()
	s.SetLocation(domain.LatLng{Lat: 37.4449, Lng: -122.1394}, "720 Wilson Ave")

	// Target consumption is 120*12/0.3 = 4800 kWh. With derate 0.85 the
	// first config yields 3400 AC kWh, the second 5100.
	s.SetInsights(testInsights(4000, 6000))

	state := s.Snapshot()
	assert.Equal(t, 1, state.ConfigID)
	assert.False(t, state.Overridden)

	config, err := s.SelectedConfig()
	require.NoError(t, err)
	assert.Equal(t, 6000.0, config.YearlyEnergyDcKwh)
}

func TestStore_SetLocationDropsStaleInsights(t *testing.T) {
	s := testStore()
	s.SetLocation(domain.LatLng{Lat: 37.4449, Lng: -122.1394}, "first")
	s.SetInsights(testInsights(4000, 6000))

	s.SetLocation(domain.LatLng{Lat: 40, Lng: -74}, "second")

	state := s.Snapshot()
	assert.Nil(t, state.Insights)
	assert.Equal(t, -1, state.ConfigID)
	assert.Equal(t, "second", state.Address)
}

func TestStore_NewInsightsInvalidateSelection(t *testing.T) {
	s := testStore()
	s.SetLocation(domain.LatLng{Lat: 37.4449, Lng: -122.1394}, "first")
	s.SetInsights(testInsights(4000, 6000))
	require.NoError(t, s.SetConfigOverride(0))

	// Replacing the insights clears the override and reselects against the
	// new configuration list.
	s.SetInsights(testInsights(1000, 2000, 8000))

	state := s.Snapshot()
	assert.False(t, state.Overridden)
	assert.Equal(t, 2, state.ConfigID)
}

func TestStore_ParamsReselectUnlessOverridden(t *testing.T) {
	s := testStore()
	s.SetLocation(domain.LatLng{Lat: 37.4449, Lng: -122.1394}, "addr")
	s.SetInsights(testInsights(4000, 6000, 12000))
	require.Equal(t, 1, s.Snapshot().ConfigID)

	// Double the bill: the target doubles to 9600 kWh, pushing the
	// selection to the largest config.
	params := testParams()
	params.MonthlyBill = 240
	require.NoError(t, s.SetParams(params))
	assert.Equal(t, 2, s.Snapshot().ConfigID)

	// Pin a config, then edit parameters: the pin wins.
	require.NoError(t, s.SetConfigOverride(0))
	params.MonthlyBill = 480
	require.NoError(t, s.SetParams(params))
	state := s.Snapshot()
	assert.Equal(t, 0, state.ConfigID)
	assert.True(t, state.Overridden)

	// Clearing the pin reselects from the latest parameters.
	s.ClearConfigOverride()
	state = s.Snapshot()
	assert.False(t, state.Overridden)
	assert.Equal(t, 2, state.ConfigID)
}

func TestStore_SetParamsRejectsInvalid(t *testing.T) {
	s := testStore()
	params := testParams()
	params.MonthlyBill = -1
	require.Error(t, s.SetParams(params))
}

func TestStore_ConfigOverrideBounds(t *testing.T) {
	s := testStore()

	require.Error(t, s.SetConfigOverride(0), "no insights loaded")

	s.SetLocation(domain.LatLng{Lat: 37.4449, Lng: -122.1394}, "addr")
	s.SetInsights(testInsights(4000, 6000))
	require.Error(t, s.SetConfigOverride(-1))
	require.Error(t, s.SetConfigOverride(2))
	require.NoError(t, s.SetConfigOverride(1))
}

func TestStore_AdoptsReferencePanelCapacity(t *testing.T) {
	s := testStore()
	s.SetLocation(domain.LatLng{Lat: 37.4449, Lng: -122.1394}, "addr")

	insights := testInsights(4000, 6000)
	insights.SolarPotential.PanelCapacityWatts = 250
	s.SetInsights(insights)

	assert.Equal(t, 250.0, s.Snapshot().Params.ReferencePanelCapacityWatts)

	// Capacity ratio 400/250 = 1.6: config 0 now yields 4000*1.6*0.85 =
	// 5440 AC kWh, enough for the 4800 target.
	assert.Equal(t, 0, s.Snapshot().ConfigID)
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	s := testStore()

	var configEvents []int
	unsub := s.Subscribe(FieldConfig, func(state State) {
		configEvents = append(configEvents, state.ConfigID)
	})

	s.SetLocation(domain.LatLng{Lat: 37.4449, Lng: -122.1394}, "addr")
	s.SetInsights(testInsights(4000, 6000))
	require.NoError(t, s.SetConfigOverride(0))

	assert.Equal(t, []int{-1, 1, 0}, configEvents)

	unsub()
	s.ClearConfigOverride()
	assert.Len(t, configEvents, 3, "no events after unsubscribe")
}

func TestStore_ParamsSubscriberNotifiedOnce(t *testing.T) {
	s := testStore()

	paramsEvents := 0
	s.Subscribe(FieldParams, func(State) { paramsEvents++ })
	locationEvents := 0
	s.Subscribe(FieldLocation, func(State) { locationEvents++ })

	require.NoError(t, s.SetParams(testParams()))
	s.SetLocation(domain.LatLng{Lat: 1, Lng: 2}, "addr")

	assert.Equal(t, 1, paramsEvents)
	assert.Equal(t, 1, locationEvents)
}

func TestStore_SetLayerResetsFrame(t *testing.T) {
	s := testStore()

	s.SetLayer(layers.KindMonthlyFlux, 7)
	state := s.Snapshot()
	assert.Equal(t, layers.KindMonthlyFlux, state.LayerKind)
	assert.Equal(t, 7, state.Frame)

	// Out-of-range frames snap back to the start.
	s.SetLayer(layers.KindMask, 7)
	state = s.Snapshot()
	assert.Equal(t, layers.KindMask, state.LayerKind)
	assert.Equal(t, 0, state.Frame)
}

func TestRequestGuard_StaleTickets(t *testing.T) {
	g := NewRequestGuard()

	a := g.Begin("location")
	b := g.Begin("location")

	// The slow first request must lose to the one that started after it.
	assert.False(t, g.Current("location", a))
	assert.True(t, g.Current("location", b))

	// Scopes are independent.
	c := g.Begin("layers")
	assert.True(t, g.Current("layers", c))
	assert.True(t, g.Current("location", b))
}
