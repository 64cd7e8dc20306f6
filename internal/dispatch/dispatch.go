// Package dispatch sends serialized data operations to backend workers over
// Kafka.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/harmony-core/internal/core/observability"
	"github.com/mohammed-shakir/harmony-core/internal/logger"
	"github.com/mohammed-shakir/harmony-core/internal/operation"
	"github.com/mohammed-shakir/harmony-core/internal/schema"
)

// HeaderSchemaVersion carries the wire version of the message value.
const HeaderSchemaVersion = "harmony-schema-version"

type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
	// Version is the wire version; empty selects the newest.
	Version string
}

type Dispatcher struct {
	prod    sarama.SyncProducer
	topic   string
	version string
	ser     *operation.Serializer
	log     *slog.Logger
}

// New connects a sync producer when cfg.Enabled. A disabled dispatcher
// accepts operations and drops them.
func New(cfg Config, reg *schema.Registry, log *slog.Logger) (*Dispatcher, error) {
	if !cfg.Enabled {
		return newDispatcher(nil, cfg.Topic, "", reg, log)
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Timeout = 5 * time.Second

	prod, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("dispatch: create sync producer: %w", err)
	}
	d, err := newDispatcher(prod, cfg.Topic, cfg.Version, reg, log)
	if err != nil {
		_ = prod.Close()
		return nil, err
	}
	return d, nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(prod sarama.SyncProducer, topic, version string, reg *schema.Registry, log *slog.Logger) (*Dispatcher, error) {
	return newDispatcher(prod, topic, version, reg, log)
}

func newDispatcher(prod sarama.SyncProducer, topic, version string, reg *schema.Registry, log *slog.Logger) (*Dispatcher, error) {
	if reg == nil {
		reg = schema.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	v, err := reg.Resolve(version)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	if prod != nil && topic == "" {
		return nil, fmt.Errorf("dispatch: topic is required")
	}
	return &Dispatcher{
		prod:    prod,
		topic:   topic,
		version: v.ID,
		ser:     operation.NewSerializer(reg),
		log:     log,
	}, nil
}

func (d *Dispatcher) Enabled() bool { return d.prod != nil }

func (d *Dispatcher) Version() string { return d.version }

// Dispatch serializes op with validation and sends it keyed by its requestId.
func (d *Dispatcher) Dispatch(ctx context.Context, op *operation.DataOperation) error {
	ctx = logger.WithSchemaVersion(logger.WithComponent(ctx, "dispatch"), d.version)

	wire, err := d.ser.Serialize(op, d.version)
	observability.ObserveSerialize(d.version, err)
	if err != nil {
		observability.IncDispatch("rejected")
		return err
	}
	key := gjson.Get(wire, operation.FieldRequestID).String()

	if !d.Enabled() {
		observability.IncDispatch("disabled")
		d.log.DebugContext(ctx, "dispatch disabled, dropping operation", "request_id", key)
		return nil
	}
	if err := ctx.Err(); err != nil {
		observability.IncDispatch("canceled")
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Value: sarama.StringEncoder(wire),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderSchemaVersion), Value: []byte(d.version)},
		},
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := d.prod.SendMessage(msg)
	if err != nil {
		observability.IncDispatch("error")
		d.log.ErrorContext(ctx, "dispatch failed", "topic", d.topic, "err", err)
		return fmt.Errorf("dispatch: send to %s: %w", d.topic, err)
	}
	observability.IncDispatch("ok")
	d.log.InfoContext(ctx, "operation dispatched",
		"topic", d.topic, "partition", partition, "offset", offset, "request_id", key)
	return nil
}

func (d *Dispatcher) Close() error {
	if d.prod == nil {
		return nil
	}
	if err := d.prod.Close(); err != nil {
		return fmt.Errorf("dispatch: close producer: %w", err)
	}
	return nil
}
