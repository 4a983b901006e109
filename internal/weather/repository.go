package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sing3demons/weather/kp/internal/apperr"
	"github.com/sing3demons/weather/kp/internal/config"
	"github.com/sing3demons/weather/kp/pkg/logAction"
	"github.com/sing3demons/weather/kp/pkg/logger"
	"github.com/sing3demons/weather/kp/pkg/mlog"
	"github.com/sing3demons/weather/kp/pkg/query"
)

const maxUpstreamBody = 10 << 20

// IUpstream fetches a weather report for coordinates using a bearer token.
type IUpstream interface {
	Fetch(ctx context.Context, q CoordinateQuery, bearer string) (*Report, error)
}

// Upstream calls the weather API. The base URL already includes the language
// segment; latitude and longitude are appended as path segments with the data
// set, timezone and country selectors as query parameters.
type Upstream struct {
	cfg    config.UpstreamConfig
	client *http.Client
}

func NewUpstream(cfg config.UpstreamConfig) *Upstream {
	return &Upstream{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (u *Upstream) Fetch(ctx context.Context, q CoordinateQuery, bearer string) (*Report, error) {
	log := mlog.L(ctx)

	params := url.Values{}
	params.Set("dataSets", u.cfg.DataSets)
	params.Set("timezone", u.cfg.Timezone)
	params.Set("countryCode", u.cfg.Country)
	endpoint := fmt.Sprintf("%s/%s/%s?%s",
		strings.TrimRight(u.cfg.BaseURL, "/"), q.PathLat(), q.PathLng(), params.Encode())

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "weatherkit",
	}).Info(logAction.HTTP_REQUEST("fetch weather"), map[string]any{
		"url": endpoint,
		"lat": q.Lat,
		"lng": q.Lng,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.NewNetworkError("build upstream request", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := u.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.SetDependencyMetadata(logger.DependencyMetadata{
			Dependency:   "weatherkit",
			ResponseTime: elapsed,
			ResultFlag:   "ERROR",
		}).Error(logAction.HTTP_RESPONSE("fetch weather"), map[string]any{
			"error": err.Error(),
		})
		return nil, apperr.NewNetworkError("weather upstream unreachable", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxUpstreamBody))
	if err != nil {
		return nil, apperr.NewNetworkError("read upstream response", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		log.SetDependencyMetadata(logger.DependencyMetadata{
			Dependency:   "weatherkit",
			ResponseTime: elapsed,
			ResultCode:   fmt.Sprintf("%d", res.StatusCode),
			ResultFlag:   "ERROR",
		}).Error(logAction.HTTP_RESPONSE("fetch weather"), map[string]any{
			"status": res.StatusCode,
			"body":   query.TruncateQuery(string(body), 512),
		})
		return nil, apperr.NewUpstreamError(res.StatusCode, "weather upstream rejected the request")
	}

	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, apperr.NewFormatError("decode upstream response", err)
	}

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   "weatherkit",
		ResponseTime: elapsed,
		ResultCode:   fmt.Sprintf("%d", res.StatusCode),
		ResultFlag:   "SUCCESS",
	}).Info(logAction.HTTP_RESPONSE("fetch weather"), map[string]any{
		"status": res.StatusCode,
	})

	return &report, nil
}
