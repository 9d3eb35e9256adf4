// Package domain models rooftop solar potential data and the two pure
// calculation engines built on top of it: panel configuration selection and
// financial projection.
//
// # Data Source
//
// Building metadata originates from a geospatial solar insights API. For a
// rooftop it precomputes an ordered list of panel layout candidates
// ("solarPanelConfigs"), each with a panel count and the yearly DC energy that
// layout would produce. The list is ordered by ascending panel count and, by
// construction of the upstream data, ascending yearly energy. Selection is
// always by array index; an index is only meaningful against the exact array
// it was computed for.
//
// # Raster Conventions
//
// The same API serves geocoded raster layers (digital surface model, aerial
// RGB, roof mask, annual and monthly flux, hourly shade). All single-band
// numeric layers use -9999 as the "no data" sentinel. Hourly shade rasters
// pack a calendar month into 24 bands (one per hour of day); bit d-1 of a
// pixel's 32-bit value is set when the sun reaches that spot at that hour on
// day d. Bit 31 is reserved, which keeps the sentinel representable: -9999
// has bit 31 set and no valid day/hour combination does.
//
// Flux is measured in kWh per kW of installed capacity per year. Annual flux
// is computed for every ground location, not only rooftops, so roof-only
// views intersect it with the mask layer.
//
// # Derates and Ratios
//
// Precomputed yields are DC figures for the API's reference panel wattage.
// Two scalars adjust them to a real installation: the capacity ratio (chosen
// panel wattage over reference wattage) and the DC-to-AC derate (fraction of
// DC output delivered as usable AC power, typically 0.85). Both the selector
// and the projection engine apply the same adjustment so the configuration
// chosen for a consumption target is the one the financial figures describe.
package domain
