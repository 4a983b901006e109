package logger

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	configs "github.com/sing3demons/weather/kp/internal/config"
	"github.com/sing3demons/weather/kp/pkg/logAction"
)

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

type LogType string

const (
	TypeDetail  LogType = "detail"
	TypeSummary LogType = "summary"
)

type contextKey string

// LoggerKey is the context key middleware uses to carry the
// transaction-scoped logger through a request.
const (
	LoggerKey  contextKey = "logger"
	TraceIDKey contextKey = "traceId"
)

// DependencyMetadata describes one call to an external system. It is
// attached with SetDependencyMetadata and consumed by the next log entry.
type DependencyMetadata struct {
	Dependency   string `json:"dependency"`
	ResponseTime int64  `json:"responseTime"`
	ResultCode   string `json:"resultCode"`
	ResultFlag   string `json:"resultFlag"`
}

type ErrorSource struct {
	Node string `json:"node,omitempty"`
}

type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Source    ErrorSource    `json:"source,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable"`
}

type DetailLog struct {
	Timestamp         string         `json:"timestamp"`
	Level             LogLevel       `json:"level"`
	Type              LogType        `json:"type"`
	Service           string         `json:"service"`
	Version           string         `json:"version"`
	TransactionID     string         `json:"transactionId,omitempty"`
	SessionID         string         `json:"sessionId,omitempty"`
	UseCase           string         `json:"useCase,omitempty"`
	Action            string         `json:"action,omitempty"`
	ActionDescription string         `json:"actionDescription,omitempty"`
	SubAction         string         `json:"subAction,omitempty"`
	Data              any            `json:"data,omitempty"`
	Dependency        string         `json:"dependency,omitempty"`
	ResponseTime      int64          `json:"responseTime,omitempty"`
	ResultCode        string         `json:"resultCode,omitempty"`
	ResultFlag        string         `json:"resultFlag,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type SummarySequence struct {
	Node              string `json:"node"`
	ResultCode        string `json:"resultCode"`
	ResultDescription string `json:"resultDescription,omitempty"`
}

type SummaryLog struct {
	Timestamp     string            `json:"timestamp"`
	Level         LogLevel          `json:"level"`
	Type          LogType           `json:"type"`
	Service       string            `json:"service"`
	Version       string            `json:"version"`
	TransactionID string            `json:"transactionId,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	UseCase       string            `json:"useCase,omitempty"`
	StatusCode    int               `json:"statusCode"`
	Message       string            `json:"message,omitempty"`
	Duration      int64             `json:"duration"`
	Sequences     []SummarySequence `json:"sequences,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// ILogger is the transaction-scoped logging surface. A logger is created per
// request (or per consumed message), accumulates metadata and summary
// sequences while the transaction runs, and is flushed exactly once at the
// end with the final status.
type ILogger interface {
	StartTransaction(transactionID, sessionID string) ILogger
	TransactionID() string
	SessionID() string
	SetTransactionID(id string)
	SetSessionID(id string)
	SetUseCase(useCase string) ILogger
	SetDependencyMetadata(meta DependencyMetadata) ILogger
	WithTraceContext(ctx context.Context) ILogger
	AddMetadata(key string, value any) ILogger
	AddSuccess(node, resultCode, description string) ILogger
	Debug(action logAction.LoggerAction, data any, masks ...MaskingRule)
	Info(action logAction.LoggerAction, data any, masks ...MaskingRule)
	Warn(action logAction.LoggerAction, data any, masks ...MaskingRule)
	Error(action logAction.LoggerAction, data any, masks ...MaskingRule)
	LogError(detail ErrorDetail, masks ...MaskingRule)
	Flush(statusCode int, message string)
	FlushError(statusCode int, message string)
	Clone() ILogger
	Release()
	FlushBuffers()
	Close() error
}

type Logger struct {
	Service string
	Version string
	UseCase string

	transactionID string
	sessionID     string

	conf     *configs.LoggerConfig
	console  io.Writer
	detailW  *fileWriter
	summaryW *fileWriter

	mu        sync.Mutex
	startTime time.Time
	metadata  map[string]any
	depMeta   *DependencyMetadata
	sequences []SummarySequence
}

var _ ILogger = (*Logger)(nil)

var loggerPool = sync.Pool{New: func() any { return new(Logger) }}

func NewLogger(service, version string) ILogger {
	return NewLoggerWithConfig(service, version, configs.DefaultConfig())
}

func NewLoggerWithConfig(service, version string, conf *configs.LoggerConfig) ILogger {
	if conf == nil {
		conf = configs.DefaultConfig()
	}
	l := &Logger{
		Service:   service,
		Version:   version,
		conf:      conf,
		console:   os.Stdout,
		startTime: time.Now(),
	}
	if conf.Detail.File {
		l.detailW = getWriter(conf.Detail.Path, service+"-detail", conf.Rotation)
	}
	if conf.Summary.File {
		l.summaryW = getWriter(conf.Summary.Path, service+"-summary", conf.Rotation)
	}
	return l
}

// SetOutput redirects console output, primarily for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.console = w
	l.mu.Unlock()
}

func SetLogger(ctx context.Context, l ILogger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

func GetLogger(ctx context.Context) ILogger {
	if ctx == nil {
		return nil
	}
	if l, ok := ctx.Value(LoggerKey).(ILogger); ok {
		return l
	}
	return nil
}

func (l *Logger) StartTransaction(transactionID, sessionID string) ILogger {
	l.mu.Lock()
	l.transactionID = transactionID
	l.sessionID = sessionID
	l.startTime = time.Now()
	l.metadata = nil
	l.sequences = nil
	l.depMeta = nil
	l.mu.Unlock()
	return l
}

func (l *Logger) SetTransactionID(id string) {
	l.mu.Lock()
	l.transactionID = id
	l.mu.Unlock()
}

func (l *Logger) SetSessionID(id string) {
	l.mu.Lock()
	l.sessionID = id
	l.mu.Unlock()
}

func (l *Logger) TransactionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transactionID
}

func (l *Logger) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

func (l *Logger) SetUseCase(useCase string) ILogger {
	l.mu.Lock()
	l.UseCase = useCase
	l.mu.Unlock()
	return l
}

func (l *Logger) SetDependencyMetadata(meta DependencyMetadata) ILogger {
	l.mu.Lock()
	l.depMeta = &meta
	l.mu.Unlock()
	return l
}

func (l *Logger) WithTraceContext(ctx context.Context) ILogger {
	if ctx == nil {
		return l
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		l.AddMetadata("traceId", traceID)
	}
	return l
}

func (l *Logger) AddMetadata(key string, value any) ILogger {
	l.mu.Lock()
	if l.metadata == nil {
		l.metadata = make(map[string]any)
	}
	l.metadata[key] = value
	l.mu.Unlock()
	return l
}

func (l *Logger) AddSuccess(node, resultCode, description string) ILogger {
	l.mu.Lock()
	l.sequences = append(l.sequences, SummarySequence{
		Node:              node,
		ResultCode:        resultCode,
		ResultDescription: description,
	})
	l.mu.Unlock()
	return l
}

func (l *Logger) Debug(action logAction.LoggerAction, data any, masks ...MaskingRule) {
	l.writeDetail(LevelDebug, action, data, masks)
}

func (l *Logger) Info(action logAction.LoggerAction, data any, masks ...MaskingRule) {
	l.writeDetail(LevelInfo, action, data, masks)
}

func (l *Logger) Warn(action logAction.LoggerAction, data any, masks ...MaskingRule) {
	l.writeDetail(LevelWarn, action, data, masks)
}

func (l *Logger) Error(action logAction.LoggerAction, data any, masks ...MaskingRule) {
	l.writeDetail(LevelError, action, data, masks)
}

// LogError records a structured error in the detail stream and appends a
// matching failure sequence to the transaction summary.
func (l *Logger) LogError(detail ErrorDetail, masks ...MaskingRule) {
	l.writeDetail(LevelError, logAction.EXCEPTION(detail.Message), detail, masks)

	node := detail.Source.Node
	if node == "" {
		node = l.Service
	}
	l.mu.Lock()
	l.sequences = append(l.sequences, SummarySequence{
		Node:              node,
		ResultCode:        detail.Code,
		ResultDescription: detail.Message,
	})
	l.mu.Unlock()
}

func (l *Logger) Flush(statusCode int, message string) {
	l.writeSummary(LevelInfo, statusCode, message)
}

func (l *Logger) FlushError(statusCode int, message string) {
	l.writeSummary(LevelError, statusCode, message)
}

// Clone returns an independent logger sharing this logger's outputs and
// transaction identity. Used to hand a logger to a goroutine that outlives
// the request. Pair with Release.
func (l *Logger) Clone() ILogger {
	c := loggerPool.Get().(*Logger)
	l.mu.Lock()
	c.Service = l.Service
	c.Version = l.Version
	c.UseCase = l.UseCase
	c.conf = l.conf
	c.console = l.console
	c.detailW = l.detailW
	c.summaryW = l.summaryW
	c.transactionID = l.transactionID
	c.sessionID = l.sessionID
	c.startTime = time.Now()
	c.metadata = copyMetadata(l.metadata)
	c.sequences = nil
	c.depMeta = nil
	l.mu.Unlock()
	return c
}

func (l *Logger) Release() {
	l.mu.Lock()
	l.Service = ""
	l.Version = ""
	l.UseCase = ""
	l.transactionID = ""
	l.sessionID = ""
	l.conf = nil
	l.console = nil
	l.detailW = nil
	l.summaryW = nil
	l.metadata = nil
	l.sequences = nil
	l.depMeta = nil
	l.mu.Unlock()
	loggerPool.Put(l)
}

// FlushBuffers forces buffered file output to disk without closing anything.
func (l *Logger) FlushBuffers() {
	if l.detailW != nil {
		l.detailW.Flush()
	}
	if l.summaryW != nil {
		l.summaryW.Flush()
	}
}

// Close flushes and closes the file writers this logger references and
// removes them from the shared registry. Call once at shutdown.
func (l *Logger) Close() error {
	writersMu.Lock()
	defer writersMu.Unlock()
	var first error
	for key, w := range writers {
		if w == l.detailW || w == l.summaryW {
			if err := w.Close(); err != nil && first == nil {
				first = err
			}
			delete(writers, key)
		}
	}
	return first
}

func (l *Logger) writeDetail(level LogLevel, action logAction.LoggerAction, data any, masks []MaskingRule) {
	if !levelEnabled(level) {
		return
	}

	l.mu.Lock()
	rec := DetailLog{
		Timestamp:         time.Now().Format(time.RFC3339Nano),
		Level:             level,
		Type:              TypeDetail,
		Service:           l.Service,
		Version:           l.Version,
		TransactionID:     l.transactionID,
		SessionID:         l.sessionID,
		UseCase:           l.UseCase,
		Action:            action.Action,
		ActionDescription: action.ActionDescription,
		SubAction:         action.SubAction,
		Data:              MaskData(data, masks),
		Metadata:          copyMetadata(l.metadata),
	}
	if l.depMeta != nil {
		rec.Dependency = l.depMeta.Dependency
		rec.ResponseTime = l.depMeta.ResponseTime
		rec.ResultCode = l.depMeta.ResultCode
		rec.ResultFlag = l.depMeta.ResultFlag
		l.depMeta = nil
	}
	console := l.console
	fw := l.detailW
	fileOut := l.conf != nil && l.conf.Detail.File
	consoleOut := l.conf != nil && l.conf.Detail.Console
	l.mu.Unlock()

	emit(rec, consoleOut, console, fileOut, fw)
}

func (l *Logger) writeSummary(level LogLevel, statusCode int, message string) {
	l.mu.Lock()
	rec := SummaryLog{
		Timestamp:     time.Now().Format(time.RFC3339Nano),
		Level:         level,
		Type:          TypeSummary,
		Service:       l.Service,
		Version:       l.Version,
		TransactionID: l.transactionID,
		SessionID:     l.sessionID,
		UseCase:       l.UseCase,
		StatusCode:    statusCode,
		Message:       message,
		Duration:      time.Since(l.startTime).Milliseconds(),
		Sequences:     l.sequences,
		Metadata:      copyMetadata(l.metadata),
	}
	l.sequences = nil
	console := l.console
	fw := l.summaryW
	fileOut := l.conf != nil && l.conf.Summary.File
	consoleOut := l.conf != nil && l.conf.Summary.Console
	l.mu.Unlock()

	emit(rec, consoleOut, console, fileOut, fw)
}

func emit(rec any, consoleOut bool, console io.Writer, fileOut bool, fw *fileWriter) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	b = append(b, '\n')
	if consoleOut && console != nil {
		console.Write(b)
	}
	if fileOut && fw != nil {
		fw.Write(b)
	}
}

var levelPriority = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

func levelEnabled(level LogLevel) bool {
	min, ok := levelPriority[LogLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))]
	if !ok {
		return true
	}
	return levelPriority[level] >= min
}

func copyMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// flushInterval is how often buffered file output is forced to disk.
var flushInterval = 5 * time.Second

var (
	writersMu sync.Mutex
	writers   = map[string]*fileWriter{}
)

// getWriter returns the shared writer for a path so every logger in the
// process appends to the same file through one buffer.
func getWriter(dir, prefix string, rot configs.RotationConfig) *fileWriter {
	writersMu.Lock()
	defer writersMu.Unlock()
	key := filepath.Join(dir, prefix)
	if w, ok := writers[key]; ok {
		return w
	}
	w := newFileWriter(dir, prefix, rot)
	writers[key] = w
	return w
}

// fileWriter appends JSON lines to a date-named log file, rotating by size
// with optional gzip compression, and pruning backups by count and age.
type fileWriter struct {
	mu     sync.Mutex
	dir    string
	prefix string
	rot    configs.RotationConfig

	file   *os.File
	buf    *bufio.Writer
	size   int64
	date   string
	done   chan struct{}
	closed bool
}

func newFileWriter(dir, prefix string, rot configs.RotationConfig) *fileWriter {
	w := &fileWriter{
		dir:    dir,
		prefix: prefix,
		rot:    rot,
		done:   make(chan struct{}),
	}
	go w.flushLoop()
	return w
}

func (w *fileWriter) flushLoop() {
	t := time.NewTicker(flushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.Flush()
		case <-w.done:
			return
		}
	}
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	date := time.Now().Format("2006-01-02")
	if w.file == nil || date != w.date {
		if err := w.open(date); err != nil {
			return 0, err
		}
	}
	if w.rot.MaxSize > 0 && w.size+int64(len(p)) > w.rot.MaxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.buf.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *fileWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf != nil {
		w.buf.Flush()
	}
}

func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	var err error
	if w.buf != nil {
		err = w.buf.Flush()
	}
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
		w.file = nil
	}
	return err
}

func (w *fileWriter) currentName(date string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.prefix, date))
}

func (w *fileWriter) open(date string) error {
	if w.file != nil {
		w.buf.Flush()
		w.file.Close()
		w.file = nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.currentName(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 32*1024)
	w.size = st.Size()
	w.date = date
	return nil
}

func (w *fileWriter) rotate() error {
	current := w.file.Name()
	w.buf.Flush()
	w.file.Close()
	w.file = nil

	backup := fmt.Sprintf("%s.%s", current, time.Now().Format("20060102T150405.000000000"))
	if err := os.Rename(current, backup); err != nil {
		return err
	}
	if w.rot.Compress {
		if err := compressFile(backup); err == nil {
			os.Remove(backup)
		}
	}
	w.cleanup()
	return w.open(w.date)
}

func (w *fileWriter) cleanup() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	var cutoff time.Time
	if w.rot.MaxAge > 0 {
		cutoff = time.Now().AddDate(0, 0, -w.rot.MaxAge)
	}

	type backup struct {
		name string
		mod  time.Time
	}
	var backups []backup
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), w.prefix) || !strings.Contains(e.Name(), ".log.") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !cutoff.IsZero() && info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(w.dir, e.Name()))
			continue
		}
		backups = append(backups, backup{e.Name(), info.ModTime()})
	}

	if w.rot.MaxBackups > 0 && len(backups) > w.rot.MaxBackups {
		sort.Slice(backups, func(i, j int) bool { return backups[i].mod.After(backups[j].mod) })
		for _, b := range backups[w.rot.MaxBackups:] {
			os.Remove(filepath.Join(w.dir, b.name))
		}
	}
}

func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
