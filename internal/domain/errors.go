package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes that callers branch on. A format or
// projection failure is fatal to the single decode attempt that produced it,
// never to the session; data-unavailable and no-configurations errors are
// user-retryable.
var (
	// ErrFormat reports a malformed geocoded raster buffer.
	ErrFormat = errors.New("malformed geotiff")

	// ErrProjection reports an embedded coordinate system that cannot be
	// converted to WGS-84 latitude/longitude.
	ErrProjection = errors.New("unsupported coordinate reference system")

	// ErrDataUnavailable reports that the API has no imagery coverage at the
	// requested location and quality tier.
	ErrDataUnavailable = errors.New("no solar data available for location")

	// ErrRender reports an internal inconsistency between raster sources,
	// such as mismatched dimensions between a flux layer and the roof mask.
	ErrRender = errors.New("inconsistent raster sources")

	// ErrNoConfigurations reports building metadata with an empty panel
	// configuration list.
	ErrNoConfigurations = errors.New("building has no panel configurations")
)

// APIError carries a structured upstream HTTP error. Transient statuses
// (429, 503) are retried by the client before one of these surfaces.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("solar api: %d %s: %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("solar api: %d: %s", e.Code, e.Message)
}
