package weather

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/sing3demons/weather/kp/internal/apperr"
	"github.com/sing3demons/weather/kp/internal/config"
)

func testUpstreamConfig(base string) config.UpstreamConfig {
	return config.UpstreamConfig{
		BaseURL:  base,
		DataSets: "currentWeather,forecastDaily",
		Timezone: "auto",
		Country:  "US",
	}
}

func TestUpstreamFetchSuccess(t *testing.T) {
	var gotPath, gotAuth, gotAccept string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"currentWeather":{"temperature":20},"forecastDaily":{"days":[]}}`))
	}))
	defer srv.Close()

	// Trailing slash on the base must not double up in the request path.
	up := NewUpstream(testUpstreamConfig(srv.URL + "/api/v1/weather/en/"))
	report, err := up.Fetch(quietContext(), CoordinateQuery{Lat: 40.7128, Lng: -74.0060}, "tok-123")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if string(report.CurrentWeather) != `{"temperature":20}` {
		t.Errorf("currentWeather = %s", report.CurrentWeather)
	}
	if string(report.ForecastDaily) != `{"days":[]}` {
		t.Errorf("forecastDaily = %s", report.ForecastDaily)
	}

	if gotPath != "/api/v1/weather/en/40.7128/-74.006" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Errorf("accept = %q", gotAccept)
	}
	for param, want := range map[string]string{
		"dataSets":    "currentWeather,forecastDaily",
		"timezone":    "auto",
		"countryCode": "US",
	} {
		if got := gotQuery.Get(param); got != want {
			t.Errorf("query %s = %q, want %q", param, got, want)
		}
	}
}

func TestUpstreamStatusPassthrough(t *testing.T) {
	for _, status := range []int{401, 403, 429, 500} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "denied", status)
			}))
			defer srv.Close()

			up := NewUpstream(testUpstreamConfig(srv.URL))
			_, err := up.Fetch(quietContext(), CoordinateQuery{Lat: 10, Lng: 20}, "tok")

			ae, ok := apperr.As(err)
			if !ok || ae.Kind != apperr.KindUpstream {
				t.Fatalf("Fetch() error = %v, want upstream kind", err)
			}
			if ae.Status != status {
				t.Errorf("Status = %d, want %d", ae.Status, status)
			}
		})
	}
}

func TestUpstreamMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	up := NewUpstream(testUpstreamConfig(srv.URL))
	_, err := up.Fetch(quietContext(), CoordinateQuery{Lat: 10, Lng: 20}, "tok")

	if !apperr.IsFormat(err) {
		t.Fatalf("Fetch() error = %v, want format kind", err)
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	up := NewUpstream(testUpstreamConfig(base))
	_, err := up.Fetch(quietContext(), CoordinateQuery{Lat: 10, Lng: 20}, "tok")

	if !apperr.IsNetwork(err) {
		t.Fatalf("Fetch() error = %v, want network kind", err)
	}
}
