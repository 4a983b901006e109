package weather

import (
	"net/http"

	"github.com/sing3demons/weather/kp/internal/apperr"
	"github.com/sing3demons/weather/kp/internal/origin"
	"github.com/sing3demons/weather/kp/pkg/mlog"
)

// ErrorBody is the externally visible error envelope. Status is only set for
// upstream passthrough errors, Message only for internal failures.
type ErrorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handler walks one proxy request through its gates in order: origin, then
// method, then coordinates, then token and upstream work. A rejected origin
// never reaches signing or the upstream.
type Handler struct {
	svc     IService
	origins []string
}

func NewHandler(svc IService, allowedOrigins []string) *Handler {
	return &Handler{svc: svc, origins: allowedOrigins}
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	rwl := mlog.NewResponseWithLogger(w, r, "weather-proxy", "")

	headers, ok := origin.BuildCorsHeaders(r, h.origins)
	if !ok {
		rwl.SetHeader("Cache-Control", "no-store")
		rwl.ResponseJsonError(http.StatusForbidden, ErrorBody{Error: "forbidden_origin"},
			apperr.NewValidationError("origin not allowed", nil))
		return
	}
	for key, value := range headers {
		rwl.SetHeader(key, value)
	}

	switch r.Method {
	case http.MethodOptions:
		rwl.SetHeader("Cache-Control", "no-store")
		rwl.ResponseEmpty(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		rwl.SetHeader("Cache-Control", "no-store")
		rwl.SetHeader("Allow", "GET, OPTIONS")
		rwl.ResponseJsonError(http.StatusMethodNotAllowed, ErrorBody{Error: "method_not_allowed"},
			apperr.NewValidationError(r.Method+" is not supported", nil))
		return
	}

	qs := r.URL.Query()
	coords, err := ParseCoordinates(qs.Get("lat"), qs.Get("lng"))
	if err != nil {
		rwl.SetHeader("Cache-Control", "no-store")
		rwl.ResponseJsonError(http.StatusBadRequest, ErrorBody{Error: "invalid_coordinates"}, err)
		return
	}

	report, err := h.svc.Report(r.Context(), coords)
	if err != nil {
		respondError(rwl, err)
		return
	}

	rwl.SetHeader("Cache-Control", "public, max-age=600")
	rwl.ResponseJson(http.StatusOK, report)
}

// respondError maps the error taxonomy onto the wire. Upstream rejections
// pass their status through; everything else collapses to a 500 whose body
// carries a code and a plain message, never structured internals.
func respondError(rwl *mlog.ResponseWithLogger, err error) {
	rwl.SetHeader("Cache-Control", "no-store")

	ae, ok := apperr.As(err)
	if !ok {
		rwl.ResponseJsonError(http.StatusInternalServerError,
			ErrorBody{Error: "proxy_error", Message: "unexpected proxy failure"}, err)
		return
	}
	switch ae.Kind {
	case apperr.KindUpstream:
		rwl.ResponseJsonError(ae.Status, ErrorBody{Error: "weatherkit_error", Status: ae.Status}, err)
	case apperr.KindValidation:
		rwl.ResponseJsonError(http.StatusBadRequest, ErrorBody{Error: "invalid_coordinates"}, err)
	default:
		rwl.ResponseJsonError(http.StatusInternalServerError,
			ErrorBody{Error: "proxy_error", Message: ae.Message}, err)
	}
}
