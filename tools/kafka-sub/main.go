package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/viper"

	"github.com/valri11/usagedecoder/types"
)

type settings struct {
	Broker string
	Topic  string
	Group  string
}

// loadSettings reads KAFKA_SUB_BROKER, KAFKA_SUB_TOPIC and KAFKA_SUB_GROUP.
func loadSettings(v *viper.Viper) (settings, error) {
	v.SetEnvPrefix("kafka_sub")
	v.SetDefault("broker", "localhost:9092")
	v.SetDefault("topic", "usagerecords")
	v.SetDefault("group", "usagerecords-tail")
	v.AutomaticEnv()

	var s settings
	err := v.Unmarshal(&s)
	return s, err
}

// kafka-sub tails the topic decodeworker publishes records to.
func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	s, err := loadSettings(viper.New())
	if err != nil {
		log.Fatalf("ERR: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	topicConsumer(ctx, s.Broker, s.Topic, s.Group)
}

func topicConsumer(ctx context.Context, brokerUrl string, topic string, group string) {
	// Configuration for the consumer group
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{brokerUrl},
		GroupID:  group,
		Topic:    topic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
		MaxWait:  5 * time.Second,
	})
	defer reader.Close()

	log.Println("Starting consumer group...")
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			log.Printf("Error fetching message: %v", err)
			break
		}

		var rec types.UsageRecord
		if err := json.Unmarshal(m.Value, &rec); err != nil {
			slog.Error("not a usage record", "offset", m.Offset, "error", err)
		} else {
			slog.Info("record",
				"partition", m.Partition,
				"offset", m.Offset,
				"key", string(m.Key),
				"failed", rec.Failed(),
				"record", rec.Fields())
		}

		// Commit the message offset (important for group tracking)
		if err := reader.CommitMessages(ctx, m); err != nil {
			log.Printf("Failed to commit message: %v", err)
		}
	}
}
