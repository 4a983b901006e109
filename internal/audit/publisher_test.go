package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sing3demons/weather/kp/internal/token"
	"github.com/sing3demons/weather/kp/pkg/kafka"
)

type fakeBroker struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakeBroker) Publish(_ context.Context, topic string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, message)
	return nil
}

func (f *fakeBroker) Subscribe(context.Context, string) (*kafka.Message, error) { return nil, nil }
func (f *fakeBroker) CreateTopic(context.Context, string) error                 { return nil }
func (f *fakeBroker) Healthy() bool                                             { return true }
func (f *fakeBroker) Close() error                                              { return nil }

func (f *fakeBroker) lastEvent(t *testing.T) Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		t.Fatal("no events published")
	}
	var ev Event
	if err := json.Unmarshal(f.payloads[len(f.payloads)-1], &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestPublisherTokenMinted(t *testing.T) {
	broker := &fakeBroker{}
	pub := NewPublisher(broker, "weather.audit", "weather-proxy")
	exp := time.Now().Add(30 * time.Minute)

	pub.TokenMinted(context.Background(), "abcd1234", exp)

	ev := broker.lastEvent(t)
	if ev.Event != EventTokenMinted {
		t.Errorf("event = %q, want %q", ev.Event, EventTokenMinted)
	}
	if ev.Fingerprint != "abcd1234" || ev.ExpiresAt != exp.Unix() {
		t.Errorf("event = %+v", ev)
	}
	if ev.Service != "weather-proxy" {
		t.Errorf("service = %q", ev.Service)
	}
	if ev.Timestamp == "" {
		t.Error("timestamp missing")
	}
	if broker.topics[0] != "weather.audit" {
		t.Errorf("topic = %q", broker.topics[0])
	}
}

func TestPublisherUpstreamFailure(t *testing.T) {
	broker := &fakeBroker{}
	pub := NewPublisher(broker, "weather.audit", "weather-proxy")

	pub.UpstreamFailure(context.Background(), 502, 40.7128, -74.0060)

	ev := broker.lastEvent(t)
	if ev.Event != EventUpstreamFailure {
		t.Errorf("event = %q", ev.Event)
	}
	if ev.Status != 502 || ev.Lat != 40.7128 || ev.Lng != -74.0060 {
		t.Errorf("event = %+v", ev)
	}
	if ev.Fingerprint != "" {
		t.Errorf("fingerprint = %q, want empty", ev.Fingerprint)
	}
}

func TestPublisherNilSafe(t *testing.T) {
	var pub *Publisher
	pub.TokenMinted(context.Background(), "fp", time.Now())
	pub.UpstreamFailure(context.Background(), 500, 0, 0)

	if got := NewPublisher(nil, "weather.audit", "svc"); got != nil {
		t.Errorf("NewPublisher(nil client) = %v, want nil", got)
	}
	if got := NewPublisher(&fakeBroker{}, "", "svc"); got != nil {
		t.Errorf("NewPublisher(no topic) = %v, want nil", got)
	}
}

func TestPublisherBrokerFailureSwallowed(t *testing.T) {
	broker := &fakeBroker{err: errors.New("broker down")}
	pub := NewPublisher(broker, "weather.audit", "svc")

	// Must not panic or surface the error.
	pub.TokenMinted(context.Background(), "fp", time.Now())
}

type stubMinter struct {
	tok   *token.Token
	err   error
	calls int
}

func (m *stubMinter) Mint(context.Context) (*token.Token, error) {
	m.calls++
	return m.tok, m.err
}

func TestMintObserverPublishesOnSuccess(t *testing.T) {
	broker := &fakeBroker{}
	pub := NewPublisher(broker, "weather.audit", "svc")
	exp := time.Now().Add(time.Hour)
	obs := NewMintObserver(&stubMinter{tok: &token.Token{Value: "jwt", ExpiresAt: exp, Fingerprint: "fp99"}}, pub)

	tok, err := obs.Mint(context.Background())
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if tok.Value != "jwt" {
		t.Errorf("Mint() = %+v", tok)
	}
	ev := broker.lastEvent(t)
	if ev.Event != EventTokenMinted || ev.Fingerprint != "fp99" {
		t.Errorf("event = %+v", ev)
	}
}

func TestMintObserverSilentOnFailure(t *testing.T) {
	broker := &fakeBroker{}
	pub := NewPublisher(broker, "weather.audit", "svc")
	obs := NewMintObserver(&stubMinter{err: errors.New("mint failed")}, pub)

	if _, err := obs.Mint(context.Background()); err == nil {
		t.Fatal("Mint() error = nil, want failure passed through")
	}
	broker.mu.Lock()
	published := len(broker.payloads)
	broker.mu.Unlock()
	if published != 0 {
		t.Errorf("published %d events for a failed mint", published)
	}
}
