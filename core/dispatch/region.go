package dispatch

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"civic-dispatch/core/geo"
	"civic-dispatch/core/utils"
)

const (
	RegionUnknown         = "Unknown"
	RegionLocationMissing = "Location Missing"
	RegionAll             = "All"
	RegionGeneral         = "General"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Region is the outcome of a lookup. Label is always set; DigiPIN is empty
// for points outside the DigiPIN grid.
type Region struct {
	Label   string `json:"region"`
	DigiPIN string `json:"digipin,omitempty"`
	Source  string `json:"source"`
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*geo.Address, error)
}

type Resolver struct {
	geocoder Geocoder
	timeout  time.Duration
	logger   *utils.Logger
	metrics  *Metrics
}

func NewResolver(g Geocoder, timeout time.Duration, logger *utils.Logger, metrics *Metrics) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{geocoder: g, timeout: timeout, logger: logger.With("region"), metrics: metrics}
}

// Resolve never fails: missing coordinates yield RegionLocationMissing and
// any geocoder trouble yields RegionUnknown.
func (r *Resolver) Resolve(ctx context.Context, coords *Coordinates) Region {
	if !usableCoordinates(coords) {
		r.metrics.regionLookup("missing")
		return Region{Label: RegionLocationMissing, Source: "none"}
	}
	out := Region{Label: RegionUnknown, Source: "geocoder"}
	if pin, err := geo.EncodeDigiPIN(coords.Lat, coords.Lon); err == nil {
		out.DigiPIN = pin
	}
	if r.geocoder == nil {
		r.metrics.regionLookup("unavailable")
		return out
	}
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	addr, err := r.geocoder.Reverse(lookupCtx, coords.Lat, coords.Lon)
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		if !errors.Is(err, geo.ErrGeocoderDisabled) {
			r.logger.Warnf("region lookup %s: %v", outcome, errors.Join(ErrUpstreamUnavailable, err))
		}
		r.metrics.regionLookup(outcome)
		return out
	}
	if label := LabelFromAddress(addr); label != "" {
		out.Label = label
		r.metrics.regionLookup("ok")
		return out
	}
	r.metrics.regionLookup("empty")
	return out
}

// LabelFromAddress picks the most local named area of addr, or "" when none
// is present.
func LabelFromAddress(addr *geo.Address) string {
	if addr == nil {
		return ""
	}
	for _, v := range []string{
		addr.Neighbourhood,
		addr.Suburb,
		addr.Residential,
		addr.Village,
		addr.Town,
		addr.CityDistrict,
		addr.City,
	} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func usableCoordinates(c *Coordinates) bool {
	if c == nil {
		return false
	}
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return false
	}
	return !(c.Lat == 0 && c.Lon == 0)
}

// IssueCoordinates returns the stored location of an issue, nil when either
// half is missing.
func IssueCoordinates(lat, lon *float64) *Coordinates {
	if lat == nil || lon == nil {
		return nil
	}
	return &Coordinates{Lat: *lat, Lon: *lon}
}
