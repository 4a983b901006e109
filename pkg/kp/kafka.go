package kp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sing3demons/weather/kp/internal/config"
	"github.com/sing3demons/weather/kp/pkg/kafka"
	"github.com/sing3demons/weather/kp/pkg/logAction"
	"github.com/sing3demons/weather/kp/pkg/logger"
)

// KafkaClient runs registered topic handlers against a broker client. Each
// message is handled in a message-origin Ctx with its own cloned transaction
// logger and committed only after the handler returns without panicking.
type KafkaClient struct {
	kafkaClient kafka.Client
	config      *config.AppConfig
	log         logger.ILogger
}

func newKafkaClient(kafkaClient kafka.Client, cfg *config.AppConfig, log logger.ILogger) *KafkaClient {
	return &KafkaClient{
		kafkaClient: kafkaClient,
		config:      cfg,
		log:         log,
	}
}

func (m *Microservice) WithKafka(client kafka.Client, log logger.ILogger) {
	m.kafka = newKafkaClient(client, m.config, log)
}

func (m *Microservice) Consume(topic string, handler MyHandler) {
	m.consumers[topic] = handler
}

func (kc *KafkaClient) start(ctx context.Context, subscriptions map[string]MyHandler) {
	for topic, handler := range subscriptions {
		go kc.consumeLoop(ctx, topic, handler)
	}
}

func (kc *KafkaClient) consumeLoop(ctx context.Context, topic string, handler MyHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := kc.kafkaClient.Subscribe(ctx, topic)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			continue
		}
		if msg == nil {
			continue
		}
		kc.handleMessage(topic, msg, handler)
	}
}

func (kc *KafkaClient) handleMessage(topic string, msg *kafka.Message, handler MyHandler) {
	log := kc.log.Clone()
	defer log.Release()
	log.StartTransaction(uuid.NewString(), "")

	msgCtx := NewMessageCtx(msg.Value, kc.config, log)

	committed := func() bool {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error(logAction.EXCEPTION("panic in consumer"), map[string]any{
					"topic": topic,
					"panic": fmt.Sprintf("%v", rec),
				})
				log.FlushError(http.StatusInternalServerError, "consumer_panic")
			}
		}()
		handler(msgCtx)
		return true
	}()

	// Uncommitted messages are redelivered, so a panicking handler sees the
	// message again.
	if committed && msg.Committer != nil {
		msg.Commit()
	}
}
