package weather

import (
	"encoding/json"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/sing3demons/weather/kp/internal/apperr"
)

var validate = validator.New()

// CoordinateQuery is a validated client query. Both values are finite and
// inside the WGS84 envelope, boundaries inclusive.
type CoordinateQuery struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// Report is the stable success envelope. Both keys are always present and
// carry null when the upstream omitted that section, so clients never branch
// on key existence.
type Report struct {
	CurrentWeather json.RawMessage `json:"currentWeather"`
	ForecastDaily  json.RawMessage `json:"forecastDaily"`
}

// ParseCoordinates validates the raw lat and lng query values. NaN and the
// infinities fail the range validators, so a parsed query is always finite.
func ParseCoordinates(latStr, lngStr string) (CoordinateQuery, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return CoordinateQuery{}, apperr.NewValidationError("lat must be a number", err)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return CoordinateQuery{}, apperr.NewValidationError("lng must be a number", err)
	}
	q := CoordinateQuery{Lat: lat, Lng: lng}
	if err := validate.Struct(q); err != nil {
		return CoordinateQuery{}, apperr.NewValidationError("coordinates out of range", err)
	}
	return q, nil
}

// PathLat returns the latitude formatted for the upstream path, using the
// shortest representation that round-trips the value.
func (q CoordinateQuery) PathLat() string {
	return strconv.FormatFloat(q.Lat, 'f', -1, 64)
}

func (q CoordinateQuery) PathLng() string {
	return strconv.FormatFloat(q.Lng, 'f', -1, 64)
}
