package kp

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sing3demons/weather/kp/internal/config"
	"github.com/sing3demons/weather/kp/pkg/kafka"
	"github.com/sing3demons/weather/kp/pkg/logger"
)

type MyHandler func(ctx *Ctx)
type HandleFunc func(http.Handler) http.Handler
type Middleware HandleFunc

type Microservice struct {
	config      *config.AppConfig
	mux         *http.ServeMux
	middlewares []Middleware
	consumers   map[string]MyHandler
	kafka       *KafkaClient
}

type IMicroservice interface {
	Start()
	GET(path string, handler MyHandler, middlewares ...Middleware)
	POST(path string, handler MyHandler, middlewares ...Middleware)
	PUT(path string, handler MyHandler, middlewares ...Middleware)
	DELETE(path string, handler MyHandler, middlewares ...Middleware)
	PATCH(path string, handler MyHandler, middlewares ...Middleware)

	// Any registers a handler for every method on path. The handler owns
	// method dispatch, which keeps 405 responses in its own format instead
	// of the mux default.
	Any(path string, handler MyHandler, middlewares ...Middleware)

	Use(middleware Middleware)

	// WithKafka attaches a broker client so Consume subscriptions run
	// alongside the HTTP server.
	WithKafka(client kafka.Client, log logger.ILogger)
	Consume(topic string, handler MyHandler)
}

func NewMicroservice(cfg *config.AppConfig) IMicroservice {
	return &Microservice{
		config:    cfg,
		mux:       http.NewServeMux(),
		consumers: make(map[string]MyHandler),
	}
}

// chain wraps h in reverse so the first middleware in mws ends up outermost.
func chain(h http.Handler, mws []Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Start serves HTTP and any registered consumers until SIGINT or SIGTERM,
// then drains the server with a ten second grace period.
func (m *Microservice) Start() {
	srv := http.Server{
		Addr:         ":" + m.config.Port,
		Handler:      chain(m.mux, m.middlewares),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	m.startConsumers(consumerCtx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server listen err: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	stopConsumers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
		os.Exit(1)
	}
	wg.Wait()
	log.Println("server exited")
}

func (m *Microservice) startConsumers(ctx context.Context) {
	if len(m.consumers) == 0 {
		return
	}
	if m.kafka == nil {
		log.Println("kafka not configured, skipping consumers")
		return
	}
	m.kafka.start(ctx, m.consumers)
}

func (m *Microservice) Use(middleware Middleware) {
	m.middlewares = append(m.middlewares, middleware)
}

// preHandle adapts a MyHandler to http.HandlerFunc, applying per-route
// middlewares around it.
func (m *Microservice) preHandle(handler MyHandler, middlewares ...Middleware) http.HandlerFunc {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(newMuxContext(w, r, m.config, nil))
	})
	return chain(final, middlewares).ServeHTTP
}

// handle registers handler under Go 1.22 method-qualified mux patterns.
// An empty method matches every method on path.
func (m *Microservice) handle(method, path string, handler MyHandler, middlewares ...Middleware) {
	pattern := path
	if method != "" {
		pattern = method + " " + path
	}
	m.mux.HandleFunc(pattern, m.preHandle(handler, middlewares...))
}

func (m *Microservice) GET(path string, handler MyHandler, middlewares ...Middleware) {
	m.handle(http.MethodGet, path, handler, middlewares...)
}

func (m *Microservice) POST(path string, handler MyHandler, middlewares ...Middleware) {
	m.handle(http.MethodPost, path, handler, middlewares...)
}

func (m *Microservice) PUT(path string, handler MyHandler, middlewares ...Middleware) {
	m.handle(http.MethodPut, path, handler, middlewares...)
}

func (m *Microservice) DELETE(path string, handler MyHandler, middlewares ...Middleware) {
	m.handle(http.MethodDelete, path, handler, middlewares...)
}

func (m *Microservice) PATCH(path string, handler MyHandler, middlewares ...Middleware) {
	m.handle(http.MethodPatch, path, handler, middlewares...)
}

func (m *Microservice) Any(path string, handler MyHandler, middlewares ...Middleware) {
	m.handle("", path, handler, middlewares...)
}
