package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sing3demons/weather/kp/internal/apperr"
	"github.com/sing3demons/weather/kp/internal/database"
	"github.com/sing3demons/weather/kp/internal/token"
)

// reportCacheTTL matches the public max-age the handler advertises, so the
// shared cache never outlives what clients were told.
const reportCacheTTL = 600 * time.Second

// TokenProvider supplies upstream bearer tokens and can drop a token the
// upstream refused.
type TokenProvider interface {
	Bearer(ctx context.Context) (*token.Token, error)
	Invalidate()
}

// Auditor receives upstream failure events. Implementations must not block
// the request path.
type Auditor interface {
	UpstreamFailure(ctx context.Context, status int, lat, lng float64)
}

type IService interface {
	Report(ctx context.Context, q CoordinateQuery) (*Report, error)
}

// Service resolves a coordinate query to a weather report: shared cache
// first, then the upstream with a bearer token attached.
type Service struct {
	upstream IUpstream
	tokens   TokenProvider
	cache    database.IRedisClient
	audit    Auditor
}

// NewService builds the report pipeline. cache and audit may be nil when the
// deployment runs without Redis or Kafka.
func NewService(upstream IUpstream, tokens TokenProvider, cache database.IRedisClient, audit Auditor) *Service {
	return &Service{upstream: upstream, tokens: tokens, cache: cache, audit: audit}
}

func (s *Service) Report(ctx context.Context, q CoordinateQuery) (*Report, error) {
	if report, ok := s.fromCache(ctx, q); ok {
		return report, nil
	}

	tok, err := s.tokens.Bearer(ctx)
	if err != nil {
		return nil, err
	}

	report, err := s.upstream.Fetch(ctx, q, tok.Value)
	if err != nil && shouldRemint(err) {
		// The upstream refused a token that should still have life left,
		// which usually means the credential rotated underneath us. Mint a
		// fresh token and retry a single time.
		s.tokens.Invalidate()
		tok, err = s.tokens.Bearer(ctx)
		if err != nil {
			return nil, err
		}
		report, err = s.upstream.Fetch(ctx, q, tok.Value)
	}
	if err != nil {
		if ae, ok := apperr.As(err); ok && ae.Kind == apperr.KindUpstream && s.audit != nil {
			s.audit.UpstreamFailure(ctx, ae.Status, q.Lat, q.Lng)
		}
		return nil, err
	}

	s.storeCache(ctx, q, report)
	return report, nil
}

// shouldRemint reports whether the upstream rejected our authentication
// rather than the query itself.
func shouldRemint(err error) bool {
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindUpstream {
		return false
	}
	return ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden
}

func (s *Service) fromCache(ctx context.Context, q CoordinateQuery) (*Report, bool) {
	if s.cache == nil {
		return nil, false
	}
	val, err := s.cache.Get(ctx, cacheKey(q))
	if err != nil {
		return nil, false
	}
	var report Report
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false
	}
	return &report, true
}

// storeCache is best effort; a cache write failure never fails the request.
func (s *Service) storeCache(ctx context.Context, q CoordinateQuery, report *Report) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, cacheKey(q), string(data), reportCacheTTL)
}

func cacheKey(q CoordinateQuery) string {
	return fmt.Sprintf("weather:%.4f:%.4f", q.Lat, q.Lng)
}
