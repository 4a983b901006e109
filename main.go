package main

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sing3demons/weather/kp/internal/audit"
	"github.com/sing3demons/weather/kp/internal/config"
	"github.com/sing3demons/weather/kp/internal/credential"
	"github.com/sing3demons/weather/kp/internal/database"
	"github.com/sing3demons/weather/kp/internal/token"
	"github.com/sing3demons/weather/kp/internal/weather"
	"github.com/sing3demons/weather/kp/pkg/kafka"
	"github.com/sing3demons/weather/kp/pkg/kp"
	"github.com/sing3demons/weather/kp/pkg/logger"
)

func main() {
	godotenv.Load()
	cfg := config.Load()
	cfg.LoadDefaults()

	app := kp.NewMicroservice(cfg)

	baseLog := logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig)
	defer baseLog.Close()

	app.Use(kp.RecoverMiddleware)
	app.Use(func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLog := baseLog.Clone()
			defer reqLog.Release()
			reqLog.StartTransaction(uuid.NewString(), "")
			h.ServeHTTP(w, r.WithContext(logger.SetLogger(r.Context(), reqLog)))
		})
	})

	var db *database.Database
	var source credential.Source
	switch cfg.Credential.Source {
	case "mongo":
		var err error
		db, err = database.NewDatabase(cfg.DatabaseURL, "weather_proxy")
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close()
		source = credential.NewMongoSource(db.GetCollection(credential.Collection), cfg.Credential.KeyID)
	case "gcp":
		source = credential.NewSecretManagerSource(cfg.Credential.GCPProject, cfg.Credential.GCPSecretPrefix)
	default:
		source = credential.NewEnvSource(cfg.Credential)
	}

	var cache database.IRedisClient
	if cfg.RedisConfig.Addr != "" {
		redis, err := database.NewRedisConfig(&cfg.RedisConfig)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redis.Close()
		cache = redis
	}

	var broker kafka.Client
	var auditPub *audit.Publisher
	if len(cfg.KafkaConfig.Brokers) > 0 {
		client := kafka.New(&kafka.Config{
			Brokers:         cfg.KafkaConfig.Brokers,
			ConsumerGroupID: cfg.KafkaConfig.ConsumerGroupID,
			BatchSize:       kafka.DefaultBatchSize,
			BatchBytes:      kafka.DefaultBatchBytes,
			BatchTimeout:    kafka.DefaultBatchTimeout,
		})
		if client == nil {
			log.Fatalf("failed to configure kafka client for %v", cfg.KafkaConfig.Brokers)
		}
		defer client.Close()
		for _, topic := range []string{cfg.KafkaConfig.AuditTopic, cfg.KafkaConfig.RotationTopic} {
			if err := client.CreateTopic(context.Background(), topic); err != nil {
				log.Printf("create topic %s: %v", topic, err)
			}
		}
		broker = client
		auditPub = audit.NewPublisher(broker, cfg.KafkaConfig.AuditTopic, cfg.ServiceName)
	}

	loader := token.NewKeyLoader()
	minter := token.NewMinter(source, loader)
	tokens := token.NewCache(audit.NewMintObserver(minter, auditPub))

	upstream := weather.NewUpstream(cfg.Upstream)
	svc := weather.NewService(upstream, tokens, cache, auditPub)
	handler := weather.NewHandler(svc, cfg.AllowedOrigins)

	app.Any("/{$}", func(c *kp.Ctx) {
		handler.Handle(c.Res, c.Req)
	})

	app.GET("/healthz", func(c *kp.Ctx) {
		checks := make(map[string]string)
		code := http.StatusOK
		if db != nil {
			if err := db.Ping(); err != nil {
				checks["mongodb"] = "down"
				code = http.StatusServiceUnavailable
			} else {
				checks["mongodb"] = "ok"
			}
		}
		if cache != nil {
			if err := cache.Ping(); err != nil {
				checks["redis"] = "down"
				code = http.StatusServiceUnavailable
			} else {
				checks["redis"] = "ok"
			}
		}
		if broker != nil {
			if broker.Healthy() {
				checks["kafka"] = "ok"
			} else {
				checks["kafka"] = "down"
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, map[string]any{
			"service": cfg.ServiceName,
			"version": cfg.Version,
			"checks":  checks,
		})
	})

	if broker != nil {
		app.WithKafka(broker, baseLog)
		app.Consume(cfg.KafkaConfig.RotationTopic, token.RotationHandler(loader, tokens))
	}

	app.Start()
}
