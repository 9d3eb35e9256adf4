// Package session holds the single shared state behind the estimation flow:
// the active location, its building insights, the selected panel
// configuration, the financial parameters, and the layer currently on
// display. Every mutation goes through one entry point per field, and
// interested parties subscribe to the fields they render.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/layers"
	"github.com/helioscope/solar-potential/internal/observability"
)

// Field names one independently observable piece of session state.
type Field string

const (
	FieldLocation Field = "location"
	FieldInsights Field = "insights"
	FieldConfig   Field = "config"
	FieldParams   Field = "params"
	FieldLayer    Field = "layer"
)

// State is an immutable snapshot of the session. Pointer fields are shared
// with the store and must not be mutated by readers.
type State struct {
	Location *domain.LatLng
	Address  string
	Insights *domain.BuildingInsights

	// ConfigID indexes Insights.SolarPotential.SolarPanelConfigs, or -1
	// when no insights are loaded.
	ConfigID int
	// Overridden is true while the user has pinned ConfigID manually.
	// A pinned choice survives parameter edits until explicitly cleared.
	Overridden bool

	Params domain.FinancialParams

	LayerKind layers.Kind
	Frame     int
}

// Store is the session state owner. All access is serialized; subscribers
// are invoked synchronously after the mutation commits, outside the lock.
type Store struct {
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	state   State
	subs    map[Field]map[int]func(State)
	nextSub int
}

// NewStore creates a session seeded with the given financial parameters.
func NewStore(params domain.FinancialParams, logger *slog.Logger, metrics *observability.Metrics) *Store {
	metrics.ActiveLayer.WithLabelValues(string(layers.KindAnnualFlux)).Set(1)
	return &Store{
		logger:  logger,
		metrics: metrics,
		state: State{
			ConfigID:  -1,
			Params:    params,
			LayerKind: layers.KindAnnualFlux,
		},
		subs: make(map[Field]map[int]func(State)),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for changes to one field and returns its
// unsubscribe function. fn receives the post-mutation snapshot.
func (s *Store) Subscribe(field Field, fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs[field] == nil {
		s.subs[field] = make(map[int]func(State))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[field][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[field], id)
	}
}

// SetLocation replaces the active location. Any loaded insights belong to
// the previous location and are dropped along with the selected
// configuration and its override.
func (s *Store) SetLocation(loc domain.LatLng, address string) {
	s.mu.Lock()
	s.state.Location = &loc
	s.state.Address = address
	s.state.Insights = nil
	s.state.ConfigID = -1
	s.state.Overridden = false
	s.state.Frame = 0
	snap := s.state
	fns := s.subscribers(FieldLocation, FieldInsights, FieldConfig)
	s.mu.Unlock()

	s.metrics.SessionUpdates.WithLabelValues(string(FieldLocation)).Inc()
	s.logger.Info("session location set", "lat", loc.Lat, "lng", loc.Lng, "address", address)
	notify(fns, snap)
}

// SetInsights installs the building insights for the active location. The
// previously selected configuration indexed the old insights and is invalid
// here, so the selection is recomputed from the current parameters and any
// manual override is cleared.
func (s *Store) SetInsights(insights *domain.BuildingInsights) {
	s.mu.Lock()
	s.state.Insights = insights
	s.state.Overridden = false
	if ref := insights.SolarPotential.PanelCapacityWatts; ref > 0 {
		s.state.Params.ReferencePanelCapacityWatts = ref
	}
	s.reselectLocked()
	snap := s.state
	fns := s.subscribers(FieldInsights, FieldConfig)
	s.mu.Unlock()

	s.metrics.SessionUpdates.WithLabelValues(string(FieldInsights)).Inc()
	s.logger.Info("session insights set",
		"building", insights.Name,
		"configs", len(insights.SolarPotential.SolarPanelConfigs),
		"config_id", snap.ConfigID)
	notify(fns, snap)
}

// SetParams replaces the financial parameters. Unless the user has pinned a
// configuration, the selection follows the new consumption target.
func (s *Store) SetParams(params domain.FinancialParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state.Insights != nil {
		if ref := s.state.Insights.SolarPotential.PanelCapacityWatts; ref > 0 {
			params.ReferencePanelCapacityWatts = ref
		}
	}
	s.state.Params = params
	configChanged := false
	if !s.state.Overridden {
		before := s.state.ConfigID
		s.reselectLocked()
		configChanged = s.state.ConfigID != before
	}
	snap := s.state
	fields := []Field{FieldParams}
	if configChanged {
		fields = append(fields, FieldConfig)
	}
	fns := s.subscribers(fields...)
	s.mu.Unlock()

	s.metrics.SessionUpdates.WithLabelValues(string(FieldParams)).Inc()
	notify(fns, snap)
	return nil
}

// SetConfigOverride pins the selected configuration to an explicit index.
func (s *Store) SetConfigOverride(id int) error {
	s.mu.Lock()
	if s.state.Insights == nil {
		s.mu.Unlock()
		return fmt.Errorf("no building insights loaded")
	}
	n := len(s.state.Insights.SolarPotential.SolarPanelConfigs)
	if id < 0 || id >= n {
		s.mu.Unlock()
		return fmt.Errorf("config index %d out of range [0,%d)", id, n)
	}
	s.state.ConfigID = id
	s.state.Overridden = true
	snap := s.state
	fns := s.subscribers(FieldConfig)
	s.mu.Unlock()

	s.metrics.SessionUpdates.WithLabelValues(string(FieldConfig)).Inc()
	notify(fns, snap)
	return nil
}

// ClearConfigOverride releases a pinned configuration and recomputes the
// selection from the current parameters.
func (s *Store) ClearConfigOverride() {
	s.mu.Lock()
	s.state.Overridden = false
	s.reselectLocked()
	snap := s.state
	fns := s.subscribers(FieldConfig)
	s.mu.Unlock()

	s.metrics.SessionUpdates.WithLabelValues(string(FieldConfig)).Inc()
	notify(fns, snap)
}

// SetLayer switches the displayed layer kind and resets the frame index.
func (s *Store) SetLayer(kind layers.Kind, frame int) {
	s.mu.Lock()
	s.state.LayerKind = kind
	if frame < 0 || frame >= kind.FrameCount() {
		frame = 0
	}
	s.state.Frame = frame
	snap := s.state
	fns := s.subscribers(FieldLayer)
	s.mu.Unlock()

	s.metrics.SessionUpdates.WithLabelValues(string(FieldLayer)).Inc()
	s.metrics.ActiveLayer.Reset()
	s.metrics.ActiveLayer.WithLabelValues(string(kind)).Set(1)
	notify(fns, snap)
}

// SelectedConfig returns the active panel configuration, or an error when
// none is available.
func (s *Store) SelectedConfig() (domain.SolarPanelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Insights == nil || s.state.ConfigID < 0 {
		return domain.SolarPanelConfig{}, domain.ErrNoConfigurations
	}
	return s.state.Insights.SolarPotential.SolarPanelConfigs[s.state.ConfigID], nil
}

// reselectLocked recomputes ConfigID from the consumption target. Callers
// hold the lock and have already decided that no override applies.
func (s *Store) reselectLocked() {
	if s.state.Insights == nil {
		s.state.ConfigID = -1
		return
	}
	p := s.state.Params
	id, err := domain.SelectConfig(
		s.state.Insights.SolarPotential.SolarPanelConfigs,
		p.YearlyConsumptionKwh(),
		p.CapacityRatio(),
		p.DcToAcDerate,
	)
	if err != nil {
		s.state.ConfigID = -1
		return
	}
	s.state.ConfigID = id
}

// subscribers collects the callbacks for the given fields while the lock is
// held; the caller invokes them after releasing it.
func (s *Store) subscribers(fields ...Field) []func(State) {
	var fns []func(State)
	for _, f := range fields {
		for _, fn := range s.subs[f] {
			fns = append(fns, fn)
		}
	}
	return fns
}

func notify(fns []func(State), snap State) {
	for _, fn := range fns {
		fn(snap)
	}
}
