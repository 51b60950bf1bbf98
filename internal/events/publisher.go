// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-intake-bridge/internal/archive"
	"voice-intake-bridge/internal/observability/metrics"
)

// Publisher publishes live transcript events and call artifacts to separate
// Kafka topics.
type Publisher struct {
	writerPartial   *kafka.Writer
	writerFinal     *kafka.Writer
	writerArtifacts *kafka.Writer
	principal       string
	topicPartial    string
	topicFinal      string
	topicArtifacts  string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicPartial   string
	TopicFinal     string
	TopicArtifacts string
	Principal      string
	Enabled        bool
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicPartial:   cfg.TopicPartial,
			topicFinal:     cfg.TopicFinal,
			topicArtifacts: cfg.TopicArtifacts,
			enabled:        false,
			metrics:        m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("topicArtifacts", cfg.TopicArtifacts).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerPartial:   newWriter(cfg.TopicPartial),
		writerFinal:     newWriter(cfg.TopicFinal),
		writerArtifacts: newWriter(cfg.TopicArtifacts),
		principal:       cfg.Principal,
		topicPartial:    cfg.TopicPartial,
		topicFinal:      cfg.TopicFinal,
		topicArtifacts:  cfg.TopicArtifacts,
		enabled:         true,
		metrics:         m,
	}
}

// Enabled reports whether messages reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishPartial publishes an incremental transcript event.
func (p *Publisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerPartial, p.topicPartial, "partial", key, event, nil)
}

// PublishFinal publishes a completed utterance event.
func (p *Publisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, "final", key, event, nil)
}

// Put publishes a call artifact, keyed by call ID, with the artifact name in
// the message headers. It satisfies archive.Store.
func (p *Publisher) Put(ctx context.Context, callID string, artifact archive.Artifact, body []byte) error {
	headers := []kafka.Header{{Key: "artifact", Value: []byte(artifact)}}
	return p.publish(ctx, p.writerArtifacts, p.topicArtifacts, "artifact", callID, json.RawMessage(body), headers)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any, extra []kafka.Header) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: append([]kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		}, extra...),
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]*kafka.Writer{
		"partial":   p.writerPartial,
		"final":     p.writerFinal,
		"artifacts": p.writerArtifacts,
	} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
