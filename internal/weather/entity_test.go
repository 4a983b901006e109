package weather

import (
	"encoding/json"
	"testing"

	"github.com/sing3demons/weather/kp/internal/apperr"
)

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		lat     string
		lng     string
		wantLat float64
		wantLng float64
		wantErr bool
	}{
		{"city", "40.7128", "-74.0060", 40.7128, -74.0060, false},
		{"origin point", "0", "0", 0, 0, false},
		{"north east corner", "90", "180", 90, 180, false},
		{"south west corner", "-90", "-180", -90, -180, false},
		{"exponent form", "9e1", "1.8e2", 90, 180, false},
		{"lat above range", "90.0001", "0", 0, 0, true},
		{"lat far above range", "200", "0", 0, 0, true},
		{"lat below range", "-91", "0", 0, 0, true},
		{"lng above range", "0", "181", 0, 0, true},
		{"lng below range", "0", "-180.5", 0, 0, true},
		{"lat not a number", "abc", "0", 0, 0, true},
		{"lng not a number", "0", "abc", 0, 0, true},
		{"lat missing", "", "0", 0, 0, true},
		{"lng missing", "0", "", 0, 0, true},
		{"lat nan", "NaN", "0", 0, 0, true},
		{"lat infinite", "+Inf", "0", 0, 0, true},
		{"lng infinite", "0", "-Inf", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseCoordinates(tt.lat, tt.lng)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCoordinates(%q, %q) = %+v, want error", tt.lat, tt.lng, q)
				}
				if !apperr.IsValidation(err) {
					t.Errorf("ParseCoordinates(%q, %q) error kind = %v, want validation", tt.lat, tt.lng, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCoordinates(%q, %q) error = %v", tt.lat, tt.lng, err)
			}
			if q.Lat != tt.wantLat || q.Lng != tt.wantLng {
				t.Errorf("ParseCoordinates(%q, %q) = (%v, %v), want (%v, %v)",
					tt.lat, tt.lng, q.Lat, q.Lng, tt.wantLat, tt.wantLng)
			}
		})
	}
}

func TestReportEnvelopeShape(t *testing.T) {
	// Both keys must always appear, null when a section is missing.
	empty, err := json.Marshal(&Report{})
	if err != nil {
		t.Fatalf("marshal empty report: %v", err)
	}
	if string(empty) != `{"currentWeather":null,"forecastDaily":null}` {
		t.Errorf("empty report = %s", empty)
	}

	var report Report
	if err := json.Unmarshal([]byte(`{"currentWeather":{"temperature":20},"extra":true}`), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	out, err := json.Marshal(&report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	if string(out) != `{"currentWeather":{"temperature":20},"forecastDaily":null}` {
		t.Errorf("report = %s, want extra fields dropped and missing section null", out)
	}
}

func TestCoordinatePathSegments(t *testing.T) {
	q := CoordinateQuery{Lat: 40.7128, Lng: -74.0060}
	if q.PathLat() != "40.7128" {
		t.Errorf("PathLat() = %q", q.PathLat())
	}
	if q.PathLng() != "-74.006" {
		t.Errorf("PathLng() = %q", q.PathLng())
	}
}
