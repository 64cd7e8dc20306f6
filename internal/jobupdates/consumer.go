// Package jobupdates consumes job records published on Kafka by the job
// lifecycle service and stores them as the latest snapshot.
package jobupdates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/harmony-core/internal/core/observability"
	"github.com/mohammed-shakir/harmony-core/internal/job"
	mylog "github.com/mohammed-shakir/harmony-core/internal/logger"
	"github.com/mohammed-shakir/harmony-core/internal/store/jobstore"
)

// Refresher is told about every stored job, as a job-state-change signal.
type Refresher interface {
	Refresh(ctx context.Context, jobID string)
}

type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	store   jobstore.Store
	refresh Refresher
	seen    *offsetDedupe
	ready   atomic.Bool
}

func New(cfg Config, logger *slog.Logger, store jobstore.Store, refresh Refresher) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, logger: logger, store: store, refresh: refresh, seen: newOffsetDedupe(cfg.DedupeSize)}
}

// Start joins the consumer group and processes messages until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil {
		return errors.New("jobupdates: missing job store")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("jobupdates: create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne, ready: &c.ready}

	c.logger.Info("job update consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("job update consumer error", "err", err, "topic", c.cfg.Topic)
		}
		select {
		case <-ctx.Done():
			c.logger.Info("job update consumer shutting down")
			return nil
		case <-time.After(c.cfg.RetryBackoff):
		}
	}
}

// Ready reports whether the group session is established. It fits
// health.Check.
func (c *Consumer) Ready(context.Context) error {
	if !c.ready.Load() {
		return errors.New("consumer group not joined")
	}
	return nil
}

// ProcessOne stores one job record. Records that cannot be decoded or fail
// validation are logged and skipped; store failures are returned so the
// message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	j, err := job.Decode(msg.Value)
	if err != nil {
		obs.IncJobUpdate("invalid")
		c.logger.WarnContext(ctx, "skipping invalid job record",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	ctx = mylog.WithComponent(mylog.WithJobID(ctx, j.RequestID()), "jobupdates")

	key := dedupeKey(j.RequestID(), msg.Partition)
	if c.seen.stale(key, msg.Offset) {
		obs.IncJobUpdate("duplicate")
		return nil
	}
	if err := c.store.Put(ctx, j); err != nil {
		obs.IncJobUpdate("store_error")
		return fmt.Errorf("store job %s: %w", j.RequestID(), err)
	}
	c.seen.applied(key, msg.Offset)
	if c.refresh != nil {
		c.refresh.Refresh(ctx, j.RequestID())
	}
	obs.IncJobUpdate("ok")
	c.logger.DebugContext(ctx, "job record stored", "status", string(j.Status()), "offset", msg.Offset)
	return nil
}
