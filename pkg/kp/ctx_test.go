package kp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sing3demons/weather/kp/internal/config"
	"github.com/sing3demons/weather/kp/pkg/logger"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		ServiceName: "test",
		Version:     "1.0",
		LoggerConfig: config.LoggerConfig{
			Summary: config.LogOutputConfig{Console: false, File: false},
			Detail:  config.LogOutputConfig{Console: false, File: false},
		},
	}
}

func newTestCtx(req *http.Request) (*Ctx, *httptest.ResponseRecorder) {
	cfg := testConfig()
	rec := httptest.NewRecorder()
	return &Ctx{
		Res: rec,
		Req: req,
		Cfg: cfg,
		Log: logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig),
	}, rec
}

func TestCtx_Bind_JSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "Valid JSON",
			body: `{"name":"test","age":25}`,
			want: map[string]any{"name": "test", "age": float64(25)},
		},
		{
			name:    "Invalid JSON",
			body:    `{invalid}`,
			wantErr: true,
		},
		{
			name:    "Empty body",
			body:    ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			ctx, _ := newTestCtx(req)

			var result map[string]any
			err := ctx.Bind(&result)

			if (err != nil) != tt.wantErr {
				t.Errorf("Bind() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if result["name"] != tt.want["name"] {
					t.Errorf("got %v, want %v", result, tt.want)
				}
			}
		})
	}
}

func TestCtx_Bind_Form(t *testing.T) {
	formData := url.Values{}
	formData.Set("username", "john")
	formData.Set("password", "secret")

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	ctx, _ := newTestCtx(req)

	var result map[string]string
	err := ctx.Bind(&result)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result["username"] != "john" || result["password"] != "secret" {
		t.Errorf("got %v, want username=john password=secret", result)
	}
}

func TestCtx_Bind_UnsupportedContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("<person/>"))
	req.Header.Set("Content-Type", "application/xml")
	ctx, _ := newTestCtx(req)

	var result map[string]any
	if err := ctx.Bind(&result); err == nil {
		t.Fatal("expected error for unsupported content type")
	}
}

func TestCtx_Bind_GETBindsNothing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test?lat=1", nil)
	ctx, _ := newTestCtx(req)

	var result map[string]any
	if err := ctx.Bind(&result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected nothing bound for GET, got %v", result)
	}
}

func TestCtx_Bind_MessageOrigin(t *testing.T) {
	cfg := testConfig()
	log := logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig)
	ctx := NewMessageCtx([]byte(`{"keyId":"ABC123"}`), cfg, log)

	var result struct {
		KeyID string `json:"keyId"`
	}
	if err := ctx.Bind(&result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.KeyID != "ABC123" {
		t.Errorf("got keyId %q, want ABC123", result.KeyID)
	}

	empty := NewMessageCtx(nil, cfg, log)
	if err := empty.Bind(&result); err == nil {
		t.Fatal("expected error for empty message payload")
	}
}

func TestCtx_SessionID_Idempotent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx, _ := newTestCtx(req)

	sid1 := ctx.SessionID()
	sid2 := ctx.SessionID()

	if sid1 != sid2 {
		t.Errorf("SessionID() not idempotent: %q != %q", sid1, sid2)
	}
}

func TestCtx_SessionID_Priority(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header only", header: "h-1", want: "h-1"},
		{name: "query only", query: "q-1", want: "q-1"},
		{name: "matching header and query", header: "same", query: "same", want: "same"},
		{name: "mismatch keeps both", header: "h-1", query: "q-1", want: "h-1:q-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/test"
			if tt.query != "" {
				target += "?sid=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("x-session-id", tt.header)
			}
			ctx, _ := newTestCtx(req)

			if got := ctx.SessionID(); got != tt.want {
				t.Errorf("SessionID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCtx_TransactionID_Idempotent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx, _ := newTestCtx(req)

	tid1 := ctx.TransactionID()
	tid2 := ctx.TransactionID()

	if tid1 != tid2 {
		t.Errorf("TransactionID() not idempotent: %q != %q", tid1, tid2)
	}
}

func TestCtx_TransactionID_FromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("x-transaction-id", "txn-from-header")
	ctx, _ := newTestCtx(req)

	if got := ctx.TransactionID(); got != "txn-from-header" {
		t.Errorf("TransactionID() = %q, want txn-from-header", got)
	}
}

func TestCtx_JSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx, rec := newTestCtx(req)

	ctx.SetHeader("Cache-Control", "public, max-age=600")
	ctx.JSON(http.StatusOK, map[string]any{"ok": true})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=600" {
		t.Errorf("staged header lost: Cache-Control = %q", cc)
	}
	if rec.Header().Get("x-session-id") == "" {
		t.Error("expected x-session-id response header")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestCtx_JSONError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	ctx, rec := newTestCtx(req)

	ctx.JSONError(http.StatusBadRequest, map[string]string{"error": "invalid_coordinates"}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["error"] != "invalid_coordinates" {
		t.Errorf("body = %v", body)
	}
}

func TestCtx_StatusMessage(t *testing.T) {
	ctx := &Ctx{}
	tests := []struct {
		code int
		want string
	}{
		{http.StatusOK, "ok"},
		{http.StatusMethodNotAllowed, "method_not_allowed"},
		{http.StatusInternalServerError, "internal_server_error"},
		{999, "unknown_status"},
	}
	for _, tt := range tests {
		if got := ctx.statusMessage(tt.code); got != tt.want {
			t.Errorf("statusMessage(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestRecoverMiddleware(t *testing.T) {
	handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Errorf("body = %v", body)
	}
}

func TestMicroservice_AnyDispatchesAllMethods(t *testing.T) {
	cfg := testConfig()
	m := NewMicroservice(cfg).(*Microservice)

	var seen []string
	m.Any("/{$}", func(c *Ctx) {
		seen = append(seen, c.Req.Method)
		c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	for _, method := range []string{http.MethodGet, http.MethodOptions, http.MethodPost} {
		req := httptest.NewRequest(method, "/", nil)
		rec := httptest.NewRecorder()
		m.mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s / = %d, want 200", method, rec.Code)
		}
	}
	if len(seen) != 3 {
		t.Errorf("handler saw %v, want 3 methods", seen)
	}
}

func TestMicroservice_GETRegistersMethodPattern(t *testing.T) {
	cfg := testConfig()
	m := NewMicroservice(cfg).(*Microservice)

	m.GET("/healthz", func(c *Ctx) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	m.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec = httptest.NewRecorder()
	m.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /healthz = %d, want 405", rec.Code)
	}
}
