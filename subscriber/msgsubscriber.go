package subscriber

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/valri11/usagedecoder/telemetry"
)

const exchangeType = "headers"

type MsgSubscriberConfig struct {
	exchangeName string
	queueName    string
	consumerName string
	headers      map[string]any
	handler      MessageHandler
}

func NewMessageSubscriberConfig(
	exchangeName string,
	queueName string,
	consumerName string,
	headers map[string]any,
	handler MessageHandler,
) *MsgSubscriberConfig {
	cfg := MsgSubscriberConfig{
		exchangeName: exchangeName,
		queueName:    queueName,
		consumerName: consumerName,
		headers:      headers,
		handler:      handler,
	}
	return &cfg
}

func (c MsgSubscriberConfig) ExchangeName() string {
	return c.exchangeName
}

func (c MsgSubscriberConfig) QueueName() string {
	return c.queueName
}

func (msc *MsgSubscriberConfig) BindAndConsume(ctx context.Context, conn Connection) (Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open AMQP channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		msc.exchangeName, // name
		exchangeType,     // type
		true,             // durable
		false,            // auto-delete
		false,            // internal
		false,            // noWait
		nil,              // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		msc.queueName, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare AMQP queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,           // queue name
		"",               // routing key
		msc.exchangeName, // exchange
		false,
		msc.headers)
	if err != nil {
		return nil, fmt.Errorf("bind AMQP queue: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,           // queue
		msc.consumerName, // consumer
		false,            // auto-ack
		false,            // exclusive
		false,            // no-local
		false,            // no-wait
		nil,              // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume AMQP queue: %w", err)
	}

	tracer, ok := telemetry.TracerFromContext(ctx)
	if !ok {
		tracer = otel.Tracer("subscriber")
	}

	go msc.consume(ctx, tracer, msgs)

	return ch, nil
}

func (msc *MsgSubscriberConfig) consume(ctx context.Context, tracer trace.Tracer, msgs <-chan amqp.Delivery) {
	for msg := range msgs {
		msgCtx, span := tracer.Start(ctx, "receiveMessage",
			trace.WithAttributes(attribute.String("queue", msc.queueName)))

		action := msc.handler(msgCtx, Message{
			ID:   msg.MessageId,
			Body: msg.Body,
		})

		var err error
		switch action {
		case Ack:
			err = msg.Ack(false)
		case NAckReject:
			err = msg.Reject(false)
		case NAckRequeue:
			err = msg.Reject(true)
		case NoAction:
		}
		if err != nil {
			slog.ErrorContext(msgCtx, "settle AMQP message",
				"queue", msc.queueName, "msgId", msg.MessageId, "action", action, "error", err)
		}

		span.End()
	}
	slog.DebugContext(ctx, "AMQP consumer stopped", "queue", msc.queueName)
}
