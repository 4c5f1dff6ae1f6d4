package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/mcdev12/auctionhouse/go/internal/auction/outbox"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	SubjectFilter string // e.g., "lot.events.>"
	MaxReconnects int
	ReconnectWait time.Duration
	BufferSize    int
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    events.StreamName,
		SubjectFilter: events.SubjectPrefix + ".>",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		BufferSize:    1000,
	}
}

// EventConsumer reads lot events from JetStream and hands them to sinks. Every
// gateway instance needs every event, so it uses an ordered ephemeral
// consumer starting at new messages; delivery to clients stays best effort.
type EventConsumer struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	sinks    []auction.EventSink
	config   JetStreamConsumerConfig
}

// NewEventConsumer creates a new JetStream event consumer
func NewEventConsumer(ctx context.Context, config JetStreamConsumerConfig, sinks ...auction.EventSink) (*EventConsumer, error) {
	nc, err := outbox.Connect(config.URL, config.MaxReconnects, config.ReconnectWait)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	consumer, err := js.OrderedConsumer(ctx, config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{config.SubjectFilter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create ordered consumer: %w", err)
	}

	log.Info().
		Str("stream", config.StreamName).
		Str("filter", config.SubjectFilter).
		Msg("created JetStream consumer")

	return &EventConsumer{
		nc:       nc,
		js:       js,
		consumer: consumer,
		sinks:    sinks,
		config:   config,
	}, nil
}

// Start consumes until ctx is cancelled
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().Str("stream", ec.config.StreamName).Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, ec.config.BufferSize)
	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		default:
			log.Warn().Str("subject", msg.Subject()).Msg("consumer buffer full, dropping message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(ctx, msg.Data()); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
			}
		}
	}
}

func (ec *EventConsumer) processMessage(ctx context.Context, data []byte) error {
	lotID, ev, err := DecodeEnvelope(data)
	if err != nil {
		return err
	}
	log.Debug().
		Str("event_id", ev.ID.String()).
		Str("lot_id", lotID.String()).
		Int64("version", ev.Version).
		Str("event_type", string(ev.Type)).
		Msg("processing JetStream event")

	batch := []models.LotEvent{ev}
	for _, sink := range ec.sinks {
		if err := sink.Publish(ctx, lotID, batch); err != nil {
			log.Warn().Err(err).Str("lot_id", lotID.String()).Msg("event sink failed")
		}
	}
	return nil
}

// DecodeEnvelope parses a broker message into its lot event.
func DecodeEnvelope(data []byte) (uuid.UUID, models.LotEvent, error) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return uuid.Nil, models.LotEvent{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	lotID, err := uuid.Parse(env.LotID)
	if err != nil {
		return uuid.Nil, models.LotEvent{}, fmt.Errorf("parse lot ID: %w", err)
	}
	var ev models.LotEvent
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		return uuid.Nil, models.LotEvent{}, fmt.Errorf("unmarshal lot event: %w", err)
	}
	if ev.LotID != lotID || ev.Version != env.Version {
		return uuid.Nil, models.LotEvent{}, fmt.Errorf("envelope %s does not match its event", env.EventID)
	}
	return lotID, ev, nil
}

// Stop closes the NATS connection
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
