package geo

import (
	"errors"
	"math"
	"strings"
)

// DigiPIN bounding box. Coordinates outside it have no code.
const (
	DigiPINMinLat = 2.5
	DigiPINMaxLat = 38.5
	DigiPINMinLon = 63.5
	DigiPINMaxLon = 99.5

	digipinLevels = 10
)

var digipinGrid = [4][4]byte{
	{'F', 'C', '9', '8'},
	{'J', '3', '2', '7'},
	{'K', '4', '5', '6'},
	{'L', 'M', 'P', 'T'},
}

var (
	ErrOutOfBounds    = errors.New("coordinates outside digipin bounds")
	ErrInvalidDigiPIN = errors.New("invalid digipin")
)

// InDigiPINBounds reports whether the point can be encoded.
func InDigiPINBounds(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= DigiPINMinLat && lat <= DigiPINMaxLat && lon >= DigiPINMinLon && lon <= DigiPINMaxLon
}

// EncodeDigiPIN returns the hyphenated 10 symbol code (XXX-XXX-XXXX).
func EncodeDigiPIN(lat, lon float64) (string, error) {
	if !InDigiPINBounds(lat, lon) {
		return "", ErrOutOfBounds
	}
	minLat, maxLat := DigiPINMinLat, DigiPINMaxLat
	minLon, maxLon := DigiPINMinLon, DigiPINMaxLon
	var sb strings.Builder
	sb.Grow(digipinLevels + 2)
	for level := 1; level <= digipinLevels; level++ {
		latDiv := (maxLat - minLat) / 4
		lonDiv := (maxLon - minLon) / 4

		row := 3 - int(math.Floor((lat-minLat)/latDiv))
		col := int(math.Floor((lon - minLon) / lonDiv))
		row = clampCell(row)
		col = clampCell(col)

		sb.WriteByte(digipinGrid[row][col])
		if level == 3 || level == 6 {
			sb.WriteByte('-')
		}

		maxLat = minLat + latDiv*float64(4-row)
		minLat = minLat + latDiv*float64(3-row)
		minLon = minLon + lonDiv*float64(col)
		maxLon = minLon + lonDiv
	}
	return sb.String(), nil
}

// DecodeDigiPIN returns the centre of the cell named by code. Hyphens are
// optional and symbols are matched case-insensitively.
func DecodeDigiPIN(code string) (lat, lon float64, err error) {
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	if len(clean) != digipinLevels {
		return 0, 0, ErrInvalidDigiPIN
	}
	minLat, maxLat := DigiPINMinLat, DigiPINMaxLat
	minLon, maxLon := DigiPINMinLon, DigiPINMaxLon
	for i := 0; i < digipinLevels; i++ {
		row, col, ok := gridCell(clean[i])
		if !ok {
			return 0, 0, ErrInvalidDigiPIN
		}
		latDiv := (maxLat - minLat) / 4
		lonDiv := (maxLon - minLon) / 4

		lat1 := maxLat - latDiv*float64(row+1)
		lat2 := maxLat - latDiv*float64(row)
		lon1 := minLon + lonDiv*float64(col)
		lon2 := minLon + lonDiv*float64(col+1)

		minLat, maxLat = lat1, lat2
		minLon, maxLon = lon1, lon2
	}
	return (minLat + maxLat) / 2, (minLon + maxLon) / 2, nil
}

func gridCell(sym byte) (int, int, bool) {
	for r := range digipinGrid {
		for c := range digipinGrid[r] {
			if digipinGrid[r][c] == sym {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

func clampCell(v int) int {
	if v < 0 {
		return 0
	}
	if v > 3 {
		return 3
	}
	return v
}
