// Package httpapi exposes the estimation session over REST: resolve a
// location, tune parameters, read the projection, and pull rendered layer
// frames. It also carries the operational endpoints (health, readiness,
// metrics).
package httpapi

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helioscope/solar-potential/internal/adapter/solarapi"
	"github.com/helioscope/solar-potential/internal/config"
	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/layers"
	"github.com/helioscope/solar-potential/internal/observability"
	"github.com/helioscope/solar-potential/internal/report"
	"github.com/helioscope/solar-potential/internal/session"
)

// EstimatePublisher pushes completed reports to the export sink.
type EstimatePublisher interface {
	PublishEstimate(ctx context.Context, r report.Report) error
}

// Invalidator is the cache-bypass hook an explicit user retry goes through.
type Invalidator interface {
	Invalidate(loc domain.LatLng)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// configChecker is the default readiness check: the service is ready once it
// holds upstream credentials. All other state is fetched on demand.
type configChecker struct {
	cfg *config.Config
}

func (c configChecker) CheckReadiness(context.Context) error {
	if c.cfg.SolarAPIKey == "" {
		return errors.New("no solar API key configured")
	}
	return nil
}

// Server bundles the router and the session dependencies.
type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	logger  *slog.Logger
	metrics *observability.Metrics

	ready       ReadinessChecker
	geocoder    domain.Geocoder // nil when address lookup is disabled
	solar       solarapi.API
	invalidator Invalidator // nil when the client is uncached
	store       *session.Store
	guard       *session.RequestGuard
	publisher   EstimatePublisher // nil when export is disabled

	// layerCache holds built layers for the current location only; a
	// location change flushes it.
	mu         sync.Mutex
	layerCache map[layers.Kind]*layers.Layer
}

// NewServer constructs the router. geocoder and publisher may be nil when
// the corresponding features are disabled.
func NewServer(
	cfg *config.Config,
	solar solarapi.API,
	geocoder domain.Geocoder,
	store *session.Store,
	publisher EstimatePublisher,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:        cfg,
		engine:     engine,
		logger:     logger,
		metrics:    metrics,
		ready:      configChecker{cfg: cfg},
		geocoder:   geocoder,
		solar:      solar,
		store:      store,
		guard:      session.NewRequestGuard(),
		publisher:  publisher,
		layerCache: make(map[layers.Kind]*layers.Layer),
	}
	if inv, ok := solar.(Invalidator); ok {
		s.invalidator = inv
	}

	// Layers are tied to the location they were fetched for: drop the built
	// ones and invalidate any build still in flight.
	store.Subscribe(session.FieldLocation, func(session.State) {
		s.flushLayers()
		for _, kind := range layers.Kinds {
			s.guard.Begin(layerScope(kind))
		}
	})

	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	s.engine.GET("/readyz", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api/v1/session")
	api.POST("/location", s.handleSetLocation)
	api.PUT("/parameters", s.handleSetParameters)
	api.PUT("/config", s.handleSetConfig)
	api.DELETE("/config", s.handleClearConfig)
	api.GET("/insights", s.handleGetInsights)
	api.GET("/projection", s.handleGetProjection)
	api.PUT("/layer", s.handleSetLayer)
	api.GET("/layers/:kind", s.handleGetLayer)
	api.GET("/layers/:kind/frames/:frame", s.handleGetFrame)
	api.GET("/report.csv", s.handleGetReport)
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.CheckReadiness(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) flushLayers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layerCache = make(map[layers.Kind]*layers.Layer)
}

func (s *Server) cachedLayer(kind layers.Kind) (*layers.Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layerCache[kind]
	return l, ok
}

func (s *Server) storeLayer(kind layers.Kind, l *layers.Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layerCache[kind] = l
}

// layerScope names the stale-request guard scope for one layer kind. Kinds
// get separate scopes so concurrent builds of different layers at the same
// location cannot supersede each other; a location change bumps every scope.
func layerScope(kind layers.Kind) string {
	return "layers:" + string(kind)
}

// renderFrames builds (or reuses) the layer for a kind and renders it with
// the request's options. The ticket is taken before the snapshot so a
// location change between the two leaves the ticket stale, never the
// snapshot.
func (s *Server) renderFrames(c *gin.Context, kind layers.Kind, opts layers.RenderOptions) ([]image.Image, *layers.Layer, bool) {
	ticket := s.guard.Begin(layerScope(kind))

	state := s.store.Snapshot()
	if state.Location == nil {
		apiError(c, http.StatusNotFound, "no location selected")
		return nil, nil, false
	}

	layer, ok := s.cachedLayer(kind)
	if !ok {
		manifest, err := s.solar.DataLayers(c.Request.Context(), *state.Location, s.cfg.LayerRadiusMeters)
		if err != nil {
			s.metrics.LayerBuilds.WithLabelValues(string(kind), "error").Inc()
			s.writeDomainError(c, err)
			return nil, nil, false
		}

		layer, err = layers.Build(c.Request.Context(), kind, manifest.Sources, s.solar, s.metrics.DecodeDuration)
		if err != nil {
			s.metrics.LayerBuilds.WithLabelValues(string(kind), "error").Inc()
			s.writeDomainError(c, err)
			return nil, nil, false
		}

		// The location may have moved on while rasters were downloading.
		if !s.guard.Current(layerScope(kind), ticket) {
			s.metrics.StaleDiscards.Inc()
			apiError(c, http.StatusConflict, "superseded by a newer request")
			return nil, nil, false
		}
		if !layer.Bounds.Contains(*state.Location) {
			s.logger.Warn("selected location outside imagery bounds", "kind", kind)
		}
		s.metrics.LayerBuilds.WithLabelValues(string(kind), "success").Inc()
		s.storeLayer(kind, layer)
	}

	start := time.Now()
	frames, err := layer.Render(opts)
	if err != nil {
		s.writeDomainError(c, err)
		return nil, nil, false
	}
	s.metrics.RenderDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	return frames, layer, true
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeDomainError(c *gin.Context, err error) {
	var apiErr *domain.APIError
	switch {
	case errors.As(err, &apiErr):
		status := apiErr.Code
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"status":  apiErr.Status,
		}})
	case errors.Is(err, domain.ErrDataUnavailable):
		apiError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoConfigurations):
		apiError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrFormat), errors.Is(err, domain.ErrProjection):
		s.logger.Error("raster decode failed", "error", err)
		apiError(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrRender):
		s.logger.Error("layer render failed", "error", err)
		apiError(c, http.StatusInternalServerError, "layer rendering failed")
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		s.logger.Error("request failed", "error", err)
		apiError(c, http.StatusInternalServerError, err.Error())
	}
}

func apiError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": gin.H{"code": status, "message": msg}})
}
