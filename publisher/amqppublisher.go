package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gofrs/uuid/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/valri11/usagedecoder/types"
)

const (
	exchangeType = "topic"
)

type amqpPublisher struct {
	url          string
	exchangeName string

	conn    *amqp.Connection
	msgChan *amqp.Channel
}

// NewAmqpPublisher reads "vhost", "exchangename", "user" and "password" from params.
func NewAmqpPublisher(baseUrl string, params map[string]string) (*amqpPublisher, error) {
	p := amqpPublisher{}

	vhost := params["vhost"]
	exchangeName := params["exchangename"]

	config := amqp.Config{
		Vhost:      vhost,
		Properties: amqp.NewConnectionProperties(),
	}

	brokerURL, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse AMQP url: %w", err)
	}
	if user := params["user"]; user != "" {
		brokerURL.User = url.UserPassword(user, params["password"])
	}
	p.url = brokerURL.String()

	conn, err := amqp.DialConfig(p.url, config)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP endpoint %s (vhost: %s): %w", brokerURL.Redacted(), vhost, err)
	}
	p.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open AMQP channel: %w", err)
	}
	// confirm mode, every publish waits for the broker ack
	err = ch.Confirm(false)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("set channel to Confirm mode: %w", err)
	}
	p.msgChan = ch

	err = ch.ExchangeDeclare(
		exchangeName, // name
		exchangeType, // type
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // noWait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p.exchangeName = exchangeName

	return &p, nil
}

func (p *amqpPublisher) PublishRecords(ctx context.Context, records []types.UsageRecord) error {
	var confList []*amqp.DeferredConfirmation
	for _, rec := range records {
		jsonData, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		conf, err := p.msgChan.PublishWithDeferredConfirmWithContext(ctx,
			p.exchangeName,  // exchange name
			routingKey(rec), // routing key
			false,           // mandatory
			false,           // immediate
			amqp.Publishing{
				Headers: amqp.Table{
					"Type":    "UsageRecord",
					"Version": "1.0",
				},
				ContentType:     "application/json",
				ContentEncoding: "UTF-8",
				DeliveryMode:    amqp.Persistent,
				MessageId:       uuid.Must(uuid.NewV4()).String(),
				AppId:           "usagedecoder",
				Body:            jsonData,
			},
		)
		if err != nil {
			return fmt.Errorf("publish message: %w", err)
		}

		confList = append(confList, conf)
	}

	for _, conf := range confList {
		confirmed, err := conf.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("message confirmation: %w", err)
		}
		if !confirmed {
			return fmt.Errorf("message is not confirmed")
		}
	}

	return nil
}

func (p *amqpPublisher) Close() error {
	if err := p.msgChan.Close(); err != nil {
		return fmt.Errorf("close AMQP channel: %w", err)
	}
	return p.conn.Close()
}
