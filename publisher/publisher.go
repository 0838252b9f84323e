package publisher

import (
	"context"
	"fmt"

	"github.com/valri11/usagedecoder/types"
)

// RecordPublisher forwards decoded usage records to a downstream sink.
type RecordPublisher interface {
	PublishRecords(ctx context.Context, records []types.UsageRecord) error
	Close() error
}

func New(publisherType string, url string, params map[string]string) (RecordPublisher, error) {
	var pub RecordPublisher
	var err error
	switch publisherType {
	case "http":
		pub, err = NewHttpPublisher(url)
	case "amqp":
		pub, err = NewAmqpPublisher(url, params)
	case "kafka":
		pub, err = NewKafkaPublisher(url, params)
	default:
		return nil, fmt.Errorf("unknown publisher type: %q", publisherType)
	}
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// routingKey separates records of failed lines from decoded ones.
func routingKey(rec types.UsageRecord) string {
	if rec.Failed() {
		return "usage.failed"
	}
	return "usage.decoded"
}
