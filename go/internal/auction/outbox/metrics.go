package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// MetricsCollector receives relay measurements.
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordOutboxLag(lag int64)
}

// NoOpMetricsCollector discards everything.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordEventProcessed(string, bool, time.Duration) {}
func (NoOpMetricsCollector) RecordOutboxLag(int64)                            {}

// MetricPublisher wraps a Publisher with metrics collection.
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
	clock     clockwork.Clock
}

func NewMetricPublisher(publisher Publisher, metrics MetricsCollector, clock clockwork.Clock) *MetricPublisher {
	return &MetricPublisher{publisher: publisher, metrics: metrics, clock: clock}
}

func (p *MetricPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	start := p.clock.Now()
	err := p.publisher.Publish(ctx, event)
	p.metrics.RecordEventProcessed(event.EventType, err == nil, p.clock.Since(start))
	return err
}

// EventTypeCounts are the totals for one event type.
type EventTypeCounts struct {
	Published     uint64        `json:"published"`
	Failed        uint64        `json:"failed"`
	TotalDuration time.Duration `json:"total_duration_ns"`
}

// CounterMetrics keeps in-process totals and serves them as JSON.
type CounterMetrics struct {
	mu     sync.Mutex
	byType map[string]EventTypeCounts
	lag    int64
}

func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{byType: make(map[string]EventTypeCounts)}
}

func (m *CounterMetrics) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.byType[eventType]
	if success {
		c.Published++
	} else {
		c.Failed++
	}
	c.TotalDuration += duration
	m.byType[eventType] = c
}

func (m *CounterMetrics) RecordOutboxLag(lag int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lag = lag
}

// MetricsSnapshot is the JSON body served by CounterMetrics.
type MetricsSnapshot struct {
	Events map[string]EventTypeCounts `json:"events"`
	Lag    int64                      `json:"outbox_lag"`
}

func (m *CounterMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make(map[string]EventTypeCounts, len(m.byType))
	for k, v := range m.byType {
		events[k] = v
	}
	return MetricsSnapshot{Events: events, Lag: m.lag}
}

func (m *CounterMetrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.Snapshot()); err != nil {
		log.Error().Err(err).Msg("failed to encode outbox metrics")
	}
}
