package domain

import (
	"context"
	"time"

	"github.com/golang/geo/s2"
)

// NoDataSentinel marks "no data" pixels in raster bands served by the solar API.
const NoDataSentinel = -9999

// LatLng is a WGS-84 coordinate pair in degrees.
type LatLng struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// S2 converts the coordinate to an s2.LatLng for spherical geometry.
func (l LatLng) S2() s2.LatLng {
	return s2.LatLngFromDegrees(l.Lat, l.Lng)
}

// DistanceMeters returns the great-circle distance to another coordinate.
func (l LatLng) DistanceMeters(other LatLng) float64 {
	const earthRadiusMeters = 6371010
	return l.S2().Distance(other.S2()).Radians() * earthRadiusMeters
}

// Bounds is a geographic bounding box in degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Rect converts the box to an s2.Rect.
func (b Bounds) Rect() s2.Rect {
	return s2.RectFromLatLng(s2.LatLngFromDegrees(b.South, b.West)).
		AddPoint(s2.LatLngFromDegrees(b.North, b.East))
}

// Contains reports whether the coordinate falls inside the box.
func (b Bounds) Contains(p LatLng) bool {
	return b.Rect().ContainsLatLng(p.S2())
}

// Center returns the midpoint of the box.
func (b Bounds) Center() LatLng {
	c := b.Rect().Center()
	return LatLng{Lat: c.Lat.Degrees(), Lng: c.Lng.Degrees()}
}

// RoofSegmentSummary describes one roof segment's share of a panel configuration.
type RoofSegmentSummary struct {
	PitchDegrees      float64 `json:"pitchDegrees"`
	AzimuthDegrees    float64 `json:"azimuthDegrees"`
	PanelsCount       int     `json:"panelsCount"`
	YearlyEnergyDcKwh float64 `json:"yearlyEnergyDcKwh"`
	SegmentIndex      int     `json:"segmentIndex"`
}

// SolarPanelConfig is one precomputed panel layout candidate. Read-only;
// candidates are identified by their index in BuildingInsights.SolarPanelConfigs.
type SolarPanelConfig struct {
	PanelsCount          int                  `json:"panelsCount"`
	YearlyEnergyDcKwh    float64              `json:"yearlyEnergyDcKwh"`
	RoofSegmentSummaries []RoofSegmentSummary `json:"roofSegmentSummaries"`
}

// SolarPotential holds the rooftop solar metadata for a building.
type SolarPotential struct {
	MaxArrayPanelsCount int                `json:"maxArrayPanelsCount"`
	MaxArrayAreaM2      float64            `json:"maxArrayAreaMeters2"`
	MaxSunshineHours    float64            `json:"maxSunshineHoursPerYear"`
	PanelCapacityWatts  float64            `json:"panelCapacityWatts"`
	PanelHeightMeters   float64            `json:"panelHeightMeters"`
	PanelWidthMeters    float64            `json:"panelWidthMeters"`
	PanelLifetimeYears  int                `json:"panelLifetimeYears"`
	SolarPanelConfigs   []SolarPanelConfig `json:"solarPanelConfigs"`
}

// BuildingInsights is the per-building response from the solar insights API.
type BuildingInsights struct {
	Name               string         `json:"name"`
	Center             LatLng         `json:"center"`
	PostalCode         string         `json:"postalCode"`
	AdministrativeArea string         `json:"administrativeArea"`
	RegionCode         string         `json:"regionCode"`
	ImageryQuality     string         `json:"imageryQuality"`
	ImageryDate        Date           `json:"imageryDate"`
	SolarPotential     SolarPotential `json:"solarPotential"`
}

// Date is the calendar date object used by the solar API.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Time converts the date to a UTC time at midnight. Zero dates yield a zero time.
func (d Date) Time() time.Time {
	if d.Year == 0 {
		return time.Time{}
	}
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// GeocodingResult is the resolved form of a free-text address.
type GeocodingResult struct {
	Location         LatLng
	FormattedAddress string
	PlaceName        string
	Confidence       float64
}

// Geocoder resolves free-text addresses to coordinates.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, address string) (GeocodingResult, error)
}
