package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/pointbot/internal/domain"
)

// ReplyPublisher sends bot replies to a Kafka topic. It satisfies bot.Replier.
type ReplyPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewReplyPublisher connects a synchronous producer to brokers
func NewReplyPublisher(brokers []string, topic string, logger *slog.Logger) (*ReplyPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating reply producer: %w", err)
	}
	return NewReplyPublisherWithProducer(producer, topic, logger), nil
}

// NewReplyPublisherWithProducer wraps an existing producer
func NewReplyPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *ReplyPublisher {
	return &ReplyPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Reply publishes text addressed to the chat ev came from, keyed by chat id
func (p *ReplyPublisher) Reply(ctx context.Context, ev domain.ChatEvent, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := EncodeReply(ev, text, time.Now())
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(ev.ChatID, 10)),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publishing reply: %w", err)
	}

	p.logger.Debug("reply published",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"chat_id", ev.ChatID,
	)
	return nil
}

// Close closes the underlying producer
func (p *ReplyPublisher) Close() error {
	return p.producer.Close()
}
