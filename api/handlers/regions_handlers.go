package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"civic-dispatch/core/dispatch"
)

type RegionsHandler struct {
	resolver *dispatch.Resolver
}

func NewRegionsHandler(resolver *dispatch.Resolver) *RegionsHandler {
	return &RegionsHandler{resolver: resolver}
}

// Geocode answers ?lat=&lon= with a region label. Lookup failures and a
// missing coordinate still get a 200 with a fallback label; only values that
// are sent but are not numbers are rejected.
func (h *RegionsHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latOK, err := parseCoordinate(q.Get("lat"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_lat", "lat must be a number")
		return
	}
	lon, lonOK, err := parseCoordinate(q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_lon", "lon must be a number")
		return
	}
	var coords *dispatch.Coordinates
	if latOK && lonOK {
		coords = &dispatch.Coordinates{Lat: lat, Lon: lon}
	}
	writeJSON(w, http.StatusOK, h.resolver.Resolve(r.Context(), coords))
}

func parseCoordinate(raw string) (float64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
