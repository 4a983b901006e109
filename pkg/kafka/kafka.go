package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Batch defaults for the producer. BatchTimeout is in milliseconds.
const (
	DefaultBatchSize    = 100
	DefaultBatchBytes   = 1048576
	DefaultBatchTimeout = 1000

	dialTimeout   = 10 * time.Second
	redialBackoff = 10 * time.Second
)

var (
	errNoConsumerGroup  = errors.New("kafka: consumer group id not set")
	errNoBrokerReached  = errors.New("kafka: no broker reachable")
	errNotConnected     = errors.New("kafka: not connected")
	errNoTopic          = errors.New("kafka: topic is empty")
	errNoControllerConn = errors.New("kafka: no connection to controller")
)

// Client is the broker surface the rest of the service depends on. Publish
// and Subscribe are safe for concurrent use.
type Client interface {
	Publish(ctx context.Context, topic string, message []byte) error
	Subscribe(ctx context.Context, topic string) (*Message, error)
	CreateTopic(ctx context.Context, name string) error
	Healthy() bool
	Close() error
}

// Committer acknowledges a consumed message. Unacknowledged messages are
// redelivered by the broker.
type Committer interface{ Commit() }

// Message is one consumed record.
type Message struct {
	Topic string
	Value []byte
	Committer
}

// Config describes the cluster connection. BatchSize, BatchBytes and
// BatchTimeout must all be positive; use the Default constants unless tuning.
type Config struct {
	Brokers         []string
	ConsumerGroupID string

	BatchSize    int
	BatchBytes   int
	BatchTimeout int

	Security SecurityConfig
}

// SecurityConfig selects the transport protocol. The zero value is plaintext.
type SecurityConfig struct {
	Protocol  string // PLAINTEXT, SSL, SASL_PLAINTEXT or SASL_SSL
	Mechanism string // PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512
	Username  string
	Password  string
	TLS       TLSConfig
}

type TLSConfig struct {
	CertFile           string
	KeyFile            string
	CACertFile         string
	InsecureSkipVerify bool
}

// New builds a broker client, or nil when the config cannot describe a
// working cluster. A cluster that is merely unreachable at startup is not a
// config problem; the client keeps redialling in the background and reports
// unhealthy until a broker answers.
func New(conf *Config) *broker {
	if conf == nil || len(conf.Brokers) == 0 || conf.BatchSize <= 0 || conf.BatchBytes <= 0 || conf.BatchTimeout <= 0 {
		return nil
	}
	b := &broker{conf: *conf, readers: make(map[string]topicReader)}
	if err := b.connect(context.Background()); err != nil {
		go b.redial()
	}
	return b
}

// topicReader and recordWriter are the seams kafka-go is driven through,
// kept narrow so consume and publish paths can be faked in tests.
type topicReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type recordWriter interface {
	WriteMessages(ctx context.Context, msg ...kafka.Message) error
	Close() error
}

type brokerConn interface {
	Controller() (kafka.Broker, error)
	CreateTopics(...kafka.TopicConfig) error
	RemoteAddr() net.Addr
	Close() error
}

type broker struct {
	conf Config

	mu      sync.RWMutex // guards dialer, pool, writer and readers
	dialer  *kafka.Dialer
	pool    *connPool
	writer  recordWriter
	readers map[string]topicReader
}

func (b *broker) connect(ctx context.Context) error {
	dialer, err := b.conf.Security.dialer()
	if err != nil {
		return err
	}

	var conns []brokerConn
	for _, addr := range b.conf.Brokers {
		if c, err := dialer.DialContext(ctx, "tcp", addr); err == nil {
			conns = append(conns, c)
		}
	}
	if len(conns) == 0 {
		return errNoBrokerReached
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      b.conf.Brokers,
		Dialer:       dialer,
		BatchSize:    b.conf.BatchSize,
		BatchBytes:   b.conf.BatchBytes,
		BatchTimeout: time.Duration(b.conf.BatchTimeout) * time.Millisecond,
	})

	// connect also runs on the redial goroutine, concurrent with the
	// Publish and Healthy readers.
	b.mu.Lock()
	b.dialer = dialer
	b.pool = &connPool{conns: conns, dialer: dialer}
	b.writer = writer
	b.mu.Unlock()
	return nil
}

func (b *broker) redial() {
	for {
		time.Sleep(redialBackoff)
		if err := b.connect(context.Background()); err != nil {
			log.Printf("kafka: redialling %v: %v", b.conf.Brokers, err)
			continue
		}
		return
	}
}

// Healthy reports whether a controller is currently reachable. Readiness
// checks poll it; false does not stop the redial loop.
func (b *broker) Healthy() bool {
	b.mu.RLock()
	pool := b.pool
	b.mu.RUnlock()
	return pool != nil && pool.controller() != nil
}

func (b *broker) CreateTopic(_ context.Context, name string) error {
	if name == "" {
		return errNoTopic
	}
	b.mu.RLock()
	pool := b.pool
	b.mu.RUnlock()
	if pool == nil || pool.controller() == nil {
		return errNotConnected
	}
	return pool.createTopics(kafka.TopicConfig{
		Topic:             name,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}

func (b *broker) Publish(ctx context.Context, topic string, message []byte) error {
	if topic == "" {
		return errNoTopic
	}
	b.mu.RLock()
	w := b.writer
	b.mu.RUnlock()
	if w == nil {
		return errNotConnected
	}
	return w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: message,
		Time:  time.Now(),
	})
}

// Subscribe fetches the next record on topic, creating a group reader for
// the topic on first use. The returned message must be committed once
// handled or the group will see it again.
func (b *broker) Subscribe(ctx context.Context, topic string) (*Message, error) {
	if !b.Healthy() {
		// Pace the caller's poll loop while the redialler works.
		time.Sleep(redialBackoff)
		return nil, errNotConnected
	}
	if b.conf.ConsumerGroupID == "" {
		return nil, errNoConsumerGroup
	}

	b.mu.Lock()
	r, ok := b.readers[topic]
	if !ok {
		r = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  b.conf.Brokers,
			GroupID:  b.conf.ConsumerGroupID,
			Topic:    topic,
			Dialer:   b.dialer,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		})
		b.readers[topic] = r
	}
	b.mu.Unlock()

	rec, err := r.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return &Message{
		Topic:     topic,
		Value:     rec.Value,
		Committer: &ack{rec: rec, reader: r},
	}, nil
}

func (b *broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for _, r := range b.readers {
		err = errors.Join(err, r.Close())
	}
	if b.writer != nil {
		err = errors.Join(err, b.writer.Close())
	}
	if b.pool != nil {
		err = errors.Join(err, b.pool.close())
	}
	return err
}

type ack struct {
	rec    kafka.Message
	reader topicReader
}

func (a *ack) Commit() {
	if a.reader != nil {
		_ = a.reader.CommitMessages(context.Background(), a.rec)
	}
}

// connPool holds one connection per answering broker and routes admin calls
// to whichever of them is the cluster controller.
type connPool struct {
	conns  []brokerConn
	dialer *kafka.Dialer
	mu     sync.Mutex
}

func (p *connPool) controller() *kafka.Broker {
	p.mu.Lock()
	conns := append([]brokerConn(nil), p.conns...)
	p.mu.Unlock()
	for _, c := range conns {
		if c == nil {
			continue
		}
		if ctl, err := c.Controller(); err == nil {
			return &ctl
		}
	}
	return nil
}

func (p *connPool) createTopics(topics ...kafka.TopicConfig) error {
	ctl := p.controller()
	if ctl == nil {
		return errNoControllerConn
	}
	addr := net.JoinHostPort(ctl.Host, strconv.Itoa(ctl.Port))
	want, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.conns {
		if c == nil {
			continue
		}
		tcp, ok := c.RemoteAddr().(*net.TCPAddr)
		if ok && tcp.IP.Equal(want.IP) && tcp.Port == want.Port {
			return c.CreateTopics(topics...)
		}
	}

	// Controller is a broker we did not dial initially.
	c, err := p.dialer.DialContext(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	p.conns = append(p.conns, c)
	return c.CreateTopics(topics...)
}

func (p *connPool) close() error {
	var err error
	for _, c := range p.conns {
		if c != nil {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

func (s SecurityConfig) dialer() (*kafka.Dialer, error) {
	d := &kafka.Dialer{Timeout: dialTimeout, DualStack: true}

	switch strings.ToUpper(s.Protocol) {
	case "", "PLAINTEXT":
		return d, nil
	case "SSL":
		cfg, err := s.TLS.build()
		if err != nil {
			return nil, err
		}
		d.TLS = cfg
	case "SASL_PLAINTEXT":
		mech, err := s.mechanism()
		if err != nil {
			return nil, err
		}
		d.SASLMechanism = mech
	case "SASL_SSL":
		mech, err := s.mechanism()
		if err != nil {
			return nil, err
		}
		cfg, err := s.TLS.build()
		if err != nil {
			return nil, err
		}
		d.SASLMechanism = mech
		d.TLS = cfg
	default:
		return nil, fmt.Errorf("kafka: unknown security protocol %q", s.Protocol)
	}
	return d, nil
}

func (s SecurityConfig) mechanism() (sasl.Mechanism, error) {
	switch strings.ToUpper(s.Mechanism) {
	case "PLAIN":
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, s.Username, s.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, s.Username, s.Password)
	default:
		return nil, fmt.Errorf("kafka: unsupported SASL mechanism %q", s.Mechanism)
	}
}

func (t TLSConfig) build() (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: t.InsecureSkipVerify}
	if t.CACertFile != "" {
		pemBytes, err := os.ReadFile(t.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("kafka: read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(pemBytes)
		cfg.RootCAs = pool
	}
	if t.CertFile != "" && t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("kafka: load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
