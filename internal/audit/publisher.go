package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sing3demons/weather/kp/internal/token"
	"github.com/sing3demons/weather/kp/pkg/kafka"
	"github.com/sing3demons/weather/kp/pkg/logAction"
	"github.com/sing3demons/weather/kp/pkg/mlog"
)

const (
	EventTokenMinted     = "token_minted"
	EventUpstreamFailure = "upstream_failure"
)

// Event is one audit record on the audit topic. Key material never appears
// here; signing keys are referenced by fingerprint only.
type Event struct {
	Event       string  `json:"event"`
	Service     string  `json:"service"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	ExpiresAt   int64   `json:"expiresAt,omitempty"`
	Status      int     `json:"status,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lng         float64 `json:"lng,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

// Publisher emits audit events. A nil Publisher drops everything, so callers
// wire it unconditionally and configuration decides whether events flow.
type Publisher struct {
	client  kafka.Client
	topic   string
	service string
}

func NewPublisher(client kafka.Client, topic, service string) *Publisher {
	if client == nil || topic == "" {
		return nil
	}
	return &Publisher{client: client, topic: topic, service: service}
}

func (p *Publisher) TokenMinted(ctx context.Context, fingerprint string, expiresAt time.Time) {
	if p == nil {
		return
	}
	p.publish(ctx, Event{
		Event:       EventTokenMinted,
		Fingerprint: fingerprint,
		ExpiresAt:   expiresAt.Unix(),
	})
}

func (p *Publisher) UpstreamFailure(ctx context.Context, status int, lat, lng float64) {
	if p == nil {
		return
	}
	p.publish(ctx, Event{
		Event:  EventUpstreamFailure,
		Status: status,
		Lat:    lat,
		Lng:    lng,
	})
}

// publish is fire and forget; audit loss must never fail a request.
func (p *Publisher) publish(ctx context.Context, ev Event) {
	ev.Service = p.service
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	log := mlog.L(ctx)
	if err := p.client.Publish(ctx, p.topic, payload); err != nil {
		log.Error(logAction.PRODUCE(p.topic), map[string]any{
			"event": ev.Event,
			"error": err.Error(),
		})
		return
	}
	log.Info(logAction.PRODUCE(p.topic), map[string]any{"event": ev})
}

// MintObserver wraps a minter so every successful mint lands on the audit
// topic before the token is used.
type MintObserver struct {
	inner token.TokenMinter
	pub   *Publisher
}

func NewMintObserver(inner token.TokenMinter, pub *Publisher) *MintObserver {
	return &MintObserver{inner: inner, pub: pub}
}

func (o *MintObserver) Mint(ctx context.Context) (*token.Token, error) {
	tok, err := o.inner.Mint(ctx)
	if err != nil {
		return nil, err
	}
	o.pub.TokenMinted(ctx, tok.Fingerprint, tok.ExpiresAt)
	return tok, nil
}
