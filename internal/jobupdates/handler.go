package jobupdates

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/IBM/sarama"
)

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

type groupHandler struct {
	process messageProcessor
	ready   *atomic.Bool
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	if h.ready != nil {
		h.ready.Store(true)
	}
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	if h.ready != nil {
		h.ready.Store(false)
	}
	return nil
}

// ConsumeClaim marks a message only after it has been processed, so a
// failed store is retried after the next rebalance.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
