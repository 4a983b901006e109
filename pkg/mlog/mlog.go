package mlog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sing3demons/weather/kp/pkg/logAction"
	"github.com/sing3demons/weather/kp/pkg/logger"
)

// L returns the transaction logger carried by ctx, or a detached logger so
// callers never have to nil-check.
func L(ctx context.Context) logger.ILogger {
	if ctx == nil {
		return logger.NewLogger("", "")
	}
	if l := logger.GetLogger(ctx); l != nil {
		return l
	}
	return logger.NewLogger("", "")
}

// ResponseWithLogger pairs an http.ResponseWriter with the request's
// transaction logger. Writing a response also logs the outbound payload and
// flushes the transaction summary, so a handler finishes a request with a
// single call.
type ResponseWithLogger struct {
	w   http.ResponseWriter
	r   *http.Request
	log logger.ILogger
}

func NewResponseWithLogger(w http.ResponseWriter, r *http.Request, useCase, xSid string, masking ...logger.MaskingRule) *ResponseWithLogger {
	return &ResponseWithLogger{
		w:   w,
		r:   r,
		log: InitLog(r, useCase, xSid, masking...),
	}
}

func (rwl *ResponseWithLogger) Logger() logger.ILogger {
	return rwl.log
}

func (rwl *ResponseWithLogger) SetHeader(key, value string) {
	rwl.w.Header().Set(key, value)
}

// ResponseJson writes a JSON body. Headers must be set before calling; the
// status line goes out first so no header changes can follow.
func (rwl *ResponseWithLogger) ResponseJson(status int, data any, masking ...logger.MaskingRule) {
	rwl.w.Header().Set("Content-Type", "application/json")
	rwl.w.WriteHeader(status)
	json.NewEncoder(rwl.w).Encode(data)

	rwl.log.Info(logAction.OUTBOUND(rwl.r.Method+" <- "+rwl.r.URL.Path+" response"), map[string]any{
		"status":  status,
		"headers": headerMap(rwl.w.Header()),
		"body":    data,
	}, masking...)
	rwl.log.Flush(status, http.StatusText(status))
}

// ResponseJsonError writes an error body and flushes the summary at error
// level. err is logged, never written to the client.
func (rwl *ResponseWithLogger) ResponseJsonError(status int, data any, err error) {
	rwl.w.Header().Set("Content-Type", "application/json")
	rwl.w.WriteHeader(status)
	json.NewEncoder(rwl.w).Encode(data)

	out := map[string]any{
		"status":  status,
		"headers": headerMap(rwl.w.Header()),
		"body":    data,
	}
	if err != nil {
		out["error"] = err.Error()
	}
	rwl.log.Error(logAction.OUTBOUND(rwl.r.Method+" <- "+rwl.r.URL.Path+" response"), out)
	rwl.log.FlushError(status, http.StatusText(status))
}

// ResponseEmpty writes a bodyless response, used for preflight replies.
func (rwl *ResponseWithLogger) ResponseEmpty(status int) {
	rwl.w.WriteHeader(status)

	rwl.log.Info(logAction.OUTBOUND(rwl.r.Method+" <- "+rwl.r.URL.Path+" response"), map[string]any{
		"status":  status,
		"headers": headerMap(rwl.w.Header()),
	})
	rwl.log.Flush(status, http.StatusText(status))
}

// InitLog attaches the session to the request's logger and records the
// inbound request.
func InitLog(r *http.Request, useCase, xSid string, masking ...logger.MaskingRule) logger.ILogger {
	l := L(r.Context())
	l.SetUseCase(useCase)
	if xSid != "" {
		l.SetSessionID(xSid)
	}

	var body *map[string]any
	if r.Method != http.MethodGet && r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		if err == nil {
			// Restore the request body so it can be read again later.
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			body = new(map[string]any)
			json.Unmarshal(bodyBytes, body)
		}
	}

	l.Info(logAction.INBOUND(r.Method+" -> "+r.URL.Path), map[string]any{
		"method":  r.Method,
		"url":     r.URL.String(),
		"headers": headerMap(r.Header),
		"query":   r.URL.Query(),
		"body":    body,
	}, masking...)
	return l
}

func headerMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		out[key] = strings.Join(values, ", ")
	}
	return out
}
