package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/pointbot/internal/bot"
	"github.com/pointbot/internal/config"
	"github.com/pointbot/internal/domain"
)

// SourceName tags events that came from Kafka
const SourceName = "kafka"

// handleTimeout bounds the processing of a single message
const handleTimeout = 10 * time.Second

// EventHandler processes chat events
type EventHandler interface {
	Dispatch(ctx context.Context, ev domain.ChatEvent, replier bot.Replier) error
}

// Consumer consumes chat events from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       EventHandler
	replier       bot.Replier
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan struct{}
	readyOnce     sync.Once
}

// NewConsumer creates a new Kafka consumer. Replies produced while handling
// events go to replier; a nil replier drops them.
func NewConsumer(cfg *config.KafkaConfig, handler EventHandler, replier bot.Replier, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	return newConsumer(cfg, consumerGroup, handler, replier, logger), nil
}

func newConsumer(cfg *config.KafkaConfig, group sarama.ConsumerGroup, handler EventHandler, replier bot.Replier, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	if replier == nil {
		replier = discardReplier{logger: logger}
	}

	return &Consumer{
		config:        cfg,
		handler:       handler,
		replier:       replier,
		logger:        logger.With("source", SourceName),
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan struct{}),
	}
}

// Start begins consuming messages and waits until the first session is set up
// or ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &consumerGroupHandler{consumer: c}
		for {
			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop finishes the in-flight message and closes the group
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

func (c *Consumer) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// handle decodes and dispatches a single message. It reports whether the
// message was well formed.
func (c *Consumer) handle(msg *sarama.ConsumerMessage) bool {
	ev, err := DecodeEvent(msg.Value, time.Now())
	if err != nil {
		c.logger.Warn("skipping malformed message",
			"error", err,
			"offset", msg.Offset,
			"partition", msg.Partition,
		)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	// Dispatch logs its own failures
	_ = c.handler.Dispatch(ctx, ev, c.replier)
	return true
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.markReady()
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a partition one at a time, in order
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consumer.handle(message)
			session.MarkMessage(message, "")
		}
	}
}

type discardReplier struct {
	logger *slog.Logger
}

func (d discardReplier) Reply(_ context.Context, ev domain.ChatEvent, text string) error {
	d.logger.Debug("no reply topic configured, dropping reply", "chat_id", ev.ChatID, "text", text)
	return nil
}
