package subscriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	requeueBackoff    = time.Second
	maxRequeueBackoff = 30 * time.Second
)

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaMessageProvider struct {
	brokerUrl     string
	topic         string
	consumerGroup string
	handler       MessageHandler

	newReader      func(kafka.ReaderConfig) kafkaReader
	requeueBackoff time.Duration

	reader kafkaReader
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafkaMessageProvider reads "topic" and "consumer-group" from options.
func NewKafkaMessageProvider(
	brokerUrl string,
	options map[string]string,
	handler MessageHandler,
) (*kafkaMessageProvider, error) {
	topic := options["topic"]
	if topic == "" {
		return nil, fmt.Errorf("kafka subscriber: missing topic")
	}
	// offsets can only be committed for a consumer group
	consumerGroup := options["consumer-group"]
	if consumerGroup == "" {
		return nil, fmt.Errorf("kafka subscriber: missing consumer-group")
	}

	mp := kafkaMessageProvider{
		brokerUrl:     brokerUrl,
		topic:         topic,
		consumerGroup: consumerGroup,
		handler:       handler,
		newReader: func(cfg kafka.ReaderConfig) kafkaReader {
			return kafka.NewReader(cfg)
		},
		requeueBackoff: requeueBackoff,
	}

	return &mp, nil
}

func (p *kafkaMessageProvider) Close() error {
	if p.reader == nil {
		return nil
	}
	p.cancel()
	err := p.reader.Close()
	<-p.done
	return err
}

// Subscribe starts the consumer group loop. The subscriber config is not
// used, topic and group come from the provider options.
func (p *kafkaMessageProvider) Subscribe(ctx context.Context, _ MessageSubscriberConfig) error {
	if p.reader != nil {
		return fmt.Errorf("kafka subscriber: already subscribed to %s", p.topic)
	}

	p.reader = p.newReader(kafka.ReaderConfig{
		Brokers:  []string{p.brokerUrl},
		GroupID:  p.consumerGroup,
		Topic:    p.topic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
		MaxWait:  5 * time.Second,
	})
	p.done = make(chan struct{})

	ctx, p.cancel = context.WithCancel(ctx)
	go p.consume(ctx)

	return nil
}

func (p *kafkaMessageProvider) consume(ctx context.Context) {
	defer close(p.done)

	slog.Info("starting kafka consumer", "topic", p.topic, "group", p.consumerGroup)
	for {
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				slog.Error("fetch kafka message", "error", err)
			}
			return
		}

		msg := Message{
			ID:   fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset),
			Body: m.Value,
		}

		switch p.handle(ctx, msg) {
		case Ack, NAckReject:
			// rejected messages are committed too, there is no DLQ
			if err := p.reader.CommitMessages(ctx, m); err != nil {
				slog.Error("commit kafka message", "id", msg.ID, "error", err)
			}
		case NAckRequeue:
			// stopped while retrying; the offset stays uncommitted and the
			// group redelivers the message
			slog.Warn("kafka message left uncommitted", "id", msg.ID)
			return
		}
	}
}

// handle runs the handler until it stops asking for a requeue. Committing a
// later offset of the partition would skip the requeued message, so it is
// retried in place with backoff.
func (p *kafkaMessageProvider) handle(ctx context.Context, msg Message) MessageAction {
	backoff := p.requeueBackoff
	for {
		action := p.handler(ctx, msg)
		if action != NAckRequeue {
			return action
		}

		slog.Warn("kafka message requeued", "id", msg.ID, "retryIn", backoff)
		select {
		case <-ctx.Done():
			return NAckRequeue
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRequeueBackoff)
	}
}
