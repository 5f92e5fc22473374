// Package events publishes engine events to Kafka, the log, or the
// websocket hub.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/San-2310/hsbc-hack/internal/infrastructure"
	contracts "github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("publisher is closed")

// Publisher delivers events to a sink
type Publisher interface {
	Publish(ctx context.Context, event contracts.Event) error
	Close() error
}

// Config selects a publisher
type Config struct {
	Driver  string // none, log or kafka
	Brokers []string
	Topic   string
}

// Open builds the publisher named by cfg.Driver
func Open(cfg Config, logger *slog.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none", "noop":
		return Noop{}, nil
	case "log":
		return NewLogPublisher(logger), nil
	case "kafka":
		return NewKafkaPublisher(KafkaConfig{Brokers: cfg.Brokers, Topic: cfg.Topic}, logger)
	default:
		return nil, fmt.Errorf("unsupported events driver=%s", cfg.Driver)
	}
}

// Stamp fills in the id, timestamp and trace id of an event
func Stamp(ctx context.Context, event contracts.Event) contracts.Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.TraceID == "" {
		event.TraceID = infrastructure.GetTraceID(ctx)
	}
	return event
}

// Noop discards events
type Noop struct{}

func (Noop) Publish(context.Context, contracts.Event) error { return nil }
func (Noop) Close() error                                   { return nil }

// LogPublisher writes every event as a structured log line
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs events at info level
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With(slog.String("component", "events"))}
}

func (p *LogPublisher) Publish(ctx context.Context, event contracts.Event) error {
	event = Stamp(ctx, event)
	p.logger.InfoContext(ctx, "event published",
		slog.String("event", string(event.Name)),
		slog.String("event_id", event.ID),
		slog.String("dataset_id", event.DatasetID),
		slog.String("job_id", event.JobID),
		slog.Any("data", event.Data))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Broadcaster relays events to connected websocket clients
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// HubPublisher forwards events to a Broadcaster
type HubPublisher struct {
	hub Broadcaster
}

// NewHubPublisher creates a publisher that pushes events to the hub
func NewHubPublisher(hub Broadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(ctx context.Context, event contracts.Event) error {
	event = Stamp(ctx, event)
	msgType := contracts.MessageTypeDatasetEvent
	if event.Name == contracts.RulesChanged {
		msgType = contracts.MessageTypeRulesEvent
	}
	p.hub.Broadcast(string(msgType), event)
	return nil
}

func (p *HubPublisher) Close() error { return nil }

// Multi publishes to every publisher in order and joins their errors
type Multi struct {
	mu         sync.Mutex
	publishers []Publisher
	closed     bool
}

// NewMulti fans events out to publishers. Nil entries are skipped.
func NewMulti(publishers ...Publisher) *Multi {
	m := &Multi{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

func (m *Multi) Publish(ctx context.Context, event contracts.Event) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrPublisherClosed
	}
	pubs := m.publishers
	m.mu.Unlock()

	event = Stamp(ctx, event)
	var errs []error
	for _, p := range pubs {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
