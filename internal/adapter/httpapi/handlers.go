package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/helioscope/solar-potential/internal/domain"
	"github.com/helioscope/solar-potential/internal/layers"
	"github.com/helioscope/solar-potential/internal/report"
)

type locationRequest struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// handleSetLocation resolves an address or coordinate pair, loads the
// building insights, and installs both in the session. A slow lookup that
// loses to a newer one is discarded.
func (s *Server) handleSetLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var loc domain.LatLng
	address := req.Address
	switch {
	case req.Latitude != nil && req.Longitude != nil:
		loc = domain.LatLng{Lat: *req.Latitude, Lng: *req.Longitude}
	case req.Address != "":
		if s.geocoder == nil {
			apiError(c, http.StatusBadRequest, "address lookup is disabled; send coordinates")
			return
		}
		result, err := s.geocoder.ForwardGeocode(c.Request.Context(), req.Address)
		if err != nil {
			s.writeDomainError(c, err)
			return
		}
		if result.FormattedAddress == "" {
			apiError(c, http.StatusNotFound, fmt.Sprintf("no match for %q", req.Address))
			return
		}
		loc = result.Location
		address = result.FormattedAddress
	default:
		apiError(c, http.StatusBadRequest, "address or latitude/longitude required")
		return
	}

	ticket := s.guard.Begin("location")

	if c.Query("refresh") == "true" && s.invalidator != nil {
		s.invalidator.Invalidate(loc)
	}

	insights, err := s.solar.BuildingInsights(c.Request.Context(), loc)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}

	if !s.guard.Current("location", ticket) {
		s.metrics.StaleDiscards.Inc()
		apiError(c, http.StatusConflict, "superseded by a newer request")
		return
	}

	s.store.SetLocation(loc, address)
	s.store.SetInsights(&insights)
	s.logger.Info("building insights loaded",
		"building", insights.Name,
		"configs", len(insights.SolarPotential.SolarPanelConfigs),
		"snap_meters", loc.DistanceMeters(insights.Center))

	state := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"location":       loc,
		"address":        address,
		"building":       insights.Name,
		"imageryQuality": insights.ImageryQuality,
		"configId":       state.ConfigID,
		"configsCount":   len(insights.SolarPotential.SolarPanelConfigs),
	})
}

func (s *Server) handleSetParameters(c *gin.Context) {
	var params domain.FinancialParams
	if err := c.ShouldBindJSON(&params); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.store.SetParams(params); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	state := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"params":     state.Params,
		"configId":   state.ConfigID,
		"overridden": state.Overridden,
	})
}

func (s *Server) handleSetConfig(c *gin.Context) {
	var req struct {
		ConfigID *int `json:"configId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ConfigID == nil {
		apiError(c, http.StatusBadRequest, "configId required")
		return
	}
	if err := s.store.SetConfigOverride(*req.ConfigID); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	state := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{"configId": state.ConfigID, "overridden": true})
}

func (s *Server) handleClearConfig(c *gin.Context) {
	s.store.ClearConfigOverride()
	state := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{"configId": state.ConfigID, "overridden": false})
}

// handleSetLayer records which layer (and frame) the client is looking at so
// the session state round-trips through reconnects.
func (s *Server) handleSetLayer(c *gin.Context) {
	var req struct {
		Kind  string `json:"kind"`
		Frame int    `json:"frame"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind, err := layers.ParseKind(req.Kind)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	s.store.SetLayer(kind, req.Frame)

	state := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{"kind": state.LayerKind, "frame": state.Frame})
}

func (s *Server) handleGetInsights(c *gin.Context) {
	state := s.store.Snapshot()
	if state.Insights == nil {
		apiError(c, http.StatusNotFound, "no location selected")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"insights":   state.Insights,
		"configId":   state.ConfigID,
		"overridden": state.Overridden,
	})
}

func (s *Server) handleGetProjection(c *gin.Context) {
	state := s.store.Snapshot()
	config, err := s.store.SelectedConfig()
	if err != nil {
		s.writeDomainError(c, err)
		return
	}

	projection, err := domain.Project(config, state.Params)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"configId":   state.ConfigID,
		"overridden": state.Overridden,
		"projection": projection,
	})
}

func (s *Server) handleGetLayer(c *gin.Context) {
	kind, opts, ok := s.layerParams(c)
	if !ok {
		return
	}

	frames, layer, ok := s.renderFrames(c, kind, opts)
	if !ok {
		return
	}

	colors := make([]string, len(layer.Palette.Colors))
	for i, col := range layer.Palette.Colors {
		colors[i] = fmt.Sprintf("%02X%02X%02X", col.R, col.G, col.B)
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":       kind,
		"bounds":     layer.Bounds,
		"frameCount": len(frames),
		"palette": gin.H{
			"colors": colors,
			"min":    layer.Palette.Min,
			"max":    layer.Palette.Max,
		},
	})
}

func (s *Server) handleGetFrame(c *gin.Context) {
	kind, opts, ok := s.layerParams(c)
	if !ok {
		return
	}

	frameParam := strings.TrimSuffix(c.Param("frame"), ".png")
	frame, err := strconv.Atoi(frameParam)
	if err != nil || frame < 0 {
		apiError(c, http.StatusBadRequest, "invalid frame index")
		return
	}

	frames, _, ok := s.renderFrames(c, kind, opts)
	if !ok {
		return
	}
	if frame >= len(frames) {
		apiError(c, http.StatusBadRequest,
			fmt.Sprintf("frame %d out of range [0,%d)", frame, len(frames)))
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frames[frame]); err != nil {
		s.writeDomainError(c, fmt.Errorf("%w: encode png: %v", domain.ErrRender, err))
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) handleGetReport(c *gin.Context) {
	state := s.store.Snapshot()
	if state.Insights == nil {
		apiError(c, http.StatusNotFound, "no location selected")
		return
	}
	config, err := s.store.SelectedConfig()
	if err != nil {
		s.writeDomainError(c, err)
		return
	}

	rpt, err := report.Build(*state.Insights, config, state.Params, state.Address)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := rpt.WriteCSV(&buf); err != nil {
		apiError(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.ReportsGenerated.Inc()

	if s.publisher != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.publisher.PublishEstimate(ctx, rpt); err != nil {
				s.logger.Error("estimate export failed", "error", err)
			}
		}()
	}

	place := state.Address
	if place == "" {
		place = rpt.BuildingName
	}
	filename := report.Filename(place, rpt.PanelsCount, rpt.Projection.ComputedAt)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// layerParams parses the :kind path segment and the shared render options.
func (s *Server) layerParams(c *gin.Context) (layers.Kind, layers.RenderOptions, bool) {
	kind, err := layers.ParseKind(c.Param("kind"))
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return "", layers.RenderOptions{}, false
	}

	opts := layers.RenderOptions{
		RoofOnly: c.Query("roofOnly") == "true",
		Month:    0,
		Day:      15,
	}
	if v := c.Query("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid month")
			return "", layers.RenderOptions{}, false
		}
		opts.Month = m
	}
	if v := c.Query("day"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid day")
			return "", layers.RenderOptions{}, false
		}
		opts.Day = d
	}
	return kind, opts, true
}
