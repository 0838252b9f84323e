package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/valri11/usagedecoder/types"
)

const (
	topicPartitions   = 10
	topicReadyTimeout = 30 * time.Second
	flushTimeoutMs    = 5000
)

type kafkaPublisher struct {
	url   string
	topic string

	producer  *kafka.Producer
	messageId atomic.Int64
}

// NewKafkaPublisher reads the target "topic" from params and creates it when missing.
func NewKafkaPublisher(url string, params map[string]string) (*kafkaPublisher, error) {
	topic := params["topic"]
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher: missing topic")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": url})
	if err != nil {
		return nil, err
	}

	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					slog.Error("delivery failed", "partition", ev.TopicPartition, "error", ev.TopicPartition.Error)
				} else {
					slog.Debug("delivered message", "partition", ev.TopicPartition)
				}
			}
		}
	}()

	kp := kafkaPublisher{
		url:      url,
		topic:    topic,
		producer: p,
	}

	ctx, cancel := context.WithTimeout(context.Background(), topicReadyTimeout)
	defer cancel()

	err = kp.initializeKafkaTopic(ctx)
	if err != nil {
		p.Close()
		return nil, err
	}

	return &kp, nil
}

func (p *kafkaPublisher) PublishRecords(ctx context.Context, records []types.UsageRecord) error {
	for _, rec := range records {
		jsonData, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		var key []byte
		if rec.ID != nil {
			key = strconv.AppendInt(nil, *rec.ID, 10)
		}

		msgID := p.messageId.Add(1)
		err = p.producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{
				Topic:     &p.topic,
				Partition: kafka.PartitionAny,
			},
			Key:   key,
			Value: jsonData,
			Headers: []kafka.Header{
				{Key: "msg_id", Value: strconv.AppendInt(nil, msgID, 10)},
				{Key: "type", Value: []byte(routingKey(rec))},
			},
		}, nil)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *kafkaPublisher) Close() error {
	if remaining := p.producer.Flush(flushTimeoutMs); remaining > 0 {
		slog.Warn("kafka producer closed with undelivered messages", "count", remaining)
	}
	p.producer.Close()
	return nil
}

func (p *kafkaPublisher) initializeKafkaTopic(ctx context.Context) error {
	adminClient, err := kafka.NewAdminClientFromProducer(p.producer)
	if err != nil {
		return err
	}
	defer adminClient.Close()

	slog.Info("creating topic", "topic", p.topic)
	topicSpec := kafka.TopicSpecification{
		Topic:             p.topic,
		NumPartitions:     topicPartitions,
		ReplicationFactor: 1,
	}

	results, err := adminClient.CreateTopics(ctx, []kafka.TopicSpecification{topicSpec})
	if err != nil {
		return err
	}
	for _, result := range results {
		if result.Error.Code() == kafka.ErrTopicAlreadyExists {
			slog.Info("topic already exists", "topic", result.Topic)
			continue
		}
		if result.Error.Code() != kafka.ErrNoError {
			return fmt.Errorf("failed to create topic: %v", result.Error)
		}
		slog.Info("topic created successfully", "topic", result.Topic)
	}

	return p.waitForTopicReady(ctx, adminClient)
}

func (p *kafkaPublisher) waitForTopicReady(ctx context.Context, adminClient *kafka.AdminClient) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for topic %s: %w", p.topic, ctx.Err())
		case <-ticker.C:
		}

		metadata, err := adminClient.GetMetadata(&p.topic, false, 5000)
		if err != nil {
			slog.Error("metadata fetch failed", "error", err)
			continue
		}

		topicMeta, exists := metadata.Topics[p.topic]
		if !exists || len(topicMeta.Partitions) == 0 {
			continue
		}

		allPartitionsReady := true
		for _, partition := range topicMeta.Partitions {
			if partition.Error.Code() != kafka.ErrNoError || partition.Leader == -1 {
				allPartitionsReady = false
				break
			}
		}
		if allPartitionsReady {
			slog.Info("topic ready", "topic", p.topic)
			return nil
		}
	}
}
