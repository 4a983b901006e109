package kp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sing3demons/weather/kp/internal/config"
	"github.com/sing3demons/weather/kp/pkg/logAction"
	"github.com/sing3demons/weather/kp/pkg/logger"
)

const MaxBodySize = 10 << 20 // 10 MB

type ContentType string

const (
	ContentTypeJSON ContentType = "application/json"
	ContentTypeForm ContentType = "application/x-www-form-urlencoded"
)

type CtxKey string

const (
	SessionID     CtxKey = "x-session-id"
	TransactionID CtxKey = "x-transaction-id"
)

// Ctx carries one unit of work through a handler. HTTP requests populate Res
// and Req; consumed messages populate msg instead, with Res and Req nil.
type Ctx struct {
	Res http.ResponseWriter
	Req *http.Request
	Cfg *config.AppConfig
	Log logger.ILogger

	msg []byte
}

// resolveID resolves a correlation ID once per request and memoizes it in
// the request context. Priority: context value, then the named header, then
// the query parameter, then a fresh UUID. When header and query disagree
// both are kept, joined with a colon, so neither caller's value is lost.
func (c *Ctx) resolveID(key CtxKey, queryParam string, record func(string)) string {
	if id, ok := c.Req.Context().Value(key).(string); ok && id != "" {
		return id
	}

	fromHeader := strings.TrimSpace(c.Req.Header.Get(string(key)))
	fromQuery := strings.TrimSpace(c.Req.URL.Query().Get(queryParam))

	var id string
	switch {
	case fromHeader != "" && fromQuery != "" && fromHeader != fromQuery:
		id = fromHeader + ":" + fromQuery
	case fromHeader != "":
		id = fromHeader
	case fromQuery != "":
		id = fromQuery
	default:
		id = uuid.NewString()
	}

	c.Req = c.Req.WithContext(context.WithValue(c.Req.Context(), key, id))
	record(id)
	return id
}

func (c *Ctx) TransactionID() string {
	if c.Req == nil {
		return c.Log.TransactionID()
	}
	return c.resolveID(TransactionID, "tid", c.Log.SetTransactionID)
}

func (c *Ctx) SessionID() string {
	if c.Req == nil {
		return c.Log.SessionID()
	}
	return c.resolveID(SessionID, "sid", c.Log.SetSessionID)
}

func (c *Ctx) genTransactionID() string {
	tid, ok := c.Req.Context().Value(TransactionID).(string)
	if !ok || tid == "" {
		tid = uuid.NewString()
	}
	c.Req = c.Req.WithContext(context.WithValue(c.Req.Context(), TransactionID, tid))
	c.Log.SetTransactionID(tid)
	return tid
}

// newMuxContext adapts an incoming request to a Ctx, reusing the logger the
// middleware put in the request context so the whole request logs under one
// transaction.
func newMuxContext(w http.ResponseWriter, r *http.Request, cfg *config.AppConfig, log logger.ILogger) *Ctx {
	csLog := logger.GetLogger(r.Context())
	if csLog == nil {
		csLog = log
	}
	if csLog == nil {
		csLog = logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig)
	}
	r = r.WithContext(logger.SetLogger(r.Context(), csLog))

	myCtx := &Ctx{
		Res: w,
		Req: r,
		Cfg: cfg,
		Log: csLog,
	}
	myCtx.genTransactionID()

	return myCtx
}

// NewMessageCtx builds a message-origin context, as used for consumed broker
// payloads. Exported so consumer handlers can be driven directly in tests.
func NewMessageCtx(payload []byte, cfg *config.AppConfig, log logger.ILogger) *Ctx {
	return &Ctx{
		Cfg: cfg,
		Log: log,
		msg: payload,
	}
}

func (c *Ctx) Context() context.Context {
	if c.Req == nil {
		return context.Background()
	}
	return c.Req.Context()
}

func (c *Ctx) Query(name string) string {
	return c.Req.URL.Query().Get(name)
}

// Bind decodes the request body, or the message payload for consumer
// contexts, into v. GET and HEAD requests bind nothing.
func (c *Ctx) Bind(v any) error {
	if c.Req == nil {
		if len(c.msg) == 0 {
			return fmt.Errorf("empty message payload")
		}
		return json.Unmarshal(c.msg, v)
	}

	if c.Req.Method == http.MethodGet || c.Req.Method == http.MethodHead {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(c.Req.Body, MaxBodySize))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) >= MaxBodySize {
		return fmt.Errorf("request body too large (max %d bytes)", MaxBodySize)
	}
	// Leave the body readable for anything downstream that binds again.
	c.Req.Body = io.NopCloser(bytes.NewReader(body))

	mediaType := c.Req.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = string(ContentTypeJSON)
	}
	switch ContentType(strings.TrimSpace(strings.Split(mediaType, ";")[0])) {
	case ContentTypeJSON:
		return parseJSON(body, v)
	case ContentTypeForm:
		return parseForm(body, v)
	default:
		return fmt.Errorf("unsupported content type: %s", mediaType)
	}
}

// L marks the use case, resolves the session and logs the inbound request.
// Call it once at the top of a handler.
func (c *Ctx) L(useCase string, masking ...logger.MaskingRule) logger.ILogger {
	c.Log.SetUseCase(useCase)

	if c.Req == nil {
		body := make(map[string]any)
		json.Unmarshal(c.msg, &body)
		c.Log.Info(logAction.CONSUME(useCase), map[string]any{"body": body}, masking...)
		return c.Log
	}

	c.SessionID()
	body := make(map[string]any)
	c.Bind(&body)

	c.Log.Info(logAction.INBOUND(fmt.Sprintf("client %s %s server", c.Req.Method, c.Req.URL.String())), map[string]any{
		"method":  c.Req.Method,
		"url":     c.Req.URL.String(),
		"headers": c.Headers(),
		"query":   c.QueryString(),
		"body":    body,
		"remote":  c.Req.RemoteAddr,
	}, masking...)
	return c.Log
}

func (c *Ctx) Headers() map[string]string {
	headers := make(map[string]string, len(c.Req.Header))
	for key, values := range c.Req.Header {
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}

func (c *Ctx) QueryString() map[string]string {
	queries := make(map[string]string)
	for key, values := range c.Req.URL.Query() {
		var v string
		if len(values) > 0 {
			v = values[0]
		}
		queries[key] = v
	}
	return queries
}

// SetHeader stages a response header. Must run before JSON or JSONError.
func (c *Ctx) SetHeader(key, value string) {
	c.Res.Header().Set(key, value)
}

// writeJSON emits the response and the matching outbound detail entry.
func (c *Ctx) writeJSON(code int, v any, masking ...logger.MaskingRule) {
	c.Res.Header().Set("Content-Type", "application/json")
	c.Res.Header().Set(string(SessionID), c.SessionID())
	c.Res.WriteHeader(code)
	json.NewEncoder(c.Res).Encode(v)

	c.Log.Info(logAction.OUTBOUND("server response to client"), map[string]any{
		"status":  code,
		"headers": c.Res.Header(),
		"body":    v,
	}, masking...)
}

// JSON responds with v and closes out the transaction summary.
func (c *Ctx) JSON(code int, v any, masking ...logger.MaskingRule) {
	c.writeJSON(code, v, masking...)
	c.Log.Flush(code, c.statusMessage(code))
}

// JSONError responds with v and closes out the transaction as a failure,
// recording err on the summary when present.
func (c *Ctx) JSONError(code int, v any, err error) {
	c.writeJSON(code, v)
	if err != nil {
		c.Log.AddMetadata("ErrorCode", err.Error())
	}
	c.Log.FlushError(code, c.statusMessage(code))
}

func (c *Ctx) statusMessage(code int) string {
	msg := http.StatusText(code)
	if msg == "" {
		return "unknown_status"
	}
	return strings.ToLower(strings.ReplaceAll(msg, " ", "_"))
}

func parseJSON(body []byte, v any) error {
	if len(body) == 0 {
		return fmt.Errorf("empty JSON body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal JSON: %w", err)
	}
	return nil
}

func parseForm(body []byte, v any) error {
	if len(body) == 0 {
		return fmt.Errorf("empty form body")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return fmt.Errorf("parse form data: %w", err)
	}

	switch target := v.(type) {
	case *map[string]string:
		out := make(map[string]string, len(values))
		for key, vals := range values {
			if len(vals) > 0 {
				out[key] = vals[0]
			}
		}
		*target = out

	case *map[string][]string:
		*target = values

	case *map[string]any:
		out := make(map[string]any, len(values))
		for key, vals := range values {
			if len(vals) == 1 {
				out[key] = vals[0]
			} else {
				out[key] = vals
			}
		}
		*target = out

	default:
		raw, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("convert form data: %w", err)
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("unmarshal form data: %w", err)
		}
	}
	return nil
}
