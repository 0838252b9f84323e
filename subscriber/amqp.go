package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	initialRetryInterval = 1 * time.Second
	maxRetryInterval     = 30 * time.Second
)

type Dialer func(brokerUrl string, cfg amqp.Config) (Connection, error)

type amqpMessageProvider struct {
	brokerURL string
	vHost     string
	dial      Dialer

	mx           sync.Mutex
	closed       bool
	amqpClient   Connection
	amqpChannels []Channel
	subscribers  []MessageSubscriberConfig
}

func DefaultDialer(brokerUrl string, cfg amqp.Config) (Connection, error) {
	conn, err := amqp.DialConfig(brokerUrl, cfg)
	if err != nil {
		return nil, err
	}
	return ConnectionWrapper{Conn: conn}, nil
}

func NewAMQPMessageProvider(
	ctx context.Context,
	amqpURL string,
	vHost string,
	dial Dialer,
) (*amqpMessageProvider, error) {
	p := amqpMessageProvider{
		brokerURL: amqpURL,
		vHost:     vHost,
		dial:      dial,
	}

	conn, err := p.connect()
	if err != nil {
		return nil, err
	}
	p.amqpClient = conn

	go p.watchConnection(ctx, conn)

	return &p, nil
}

func (p *amqpMessageProvider) connect() (Connection, error) {
	config := amqp.Config{
		Vhost:      p.vHost,
		Properties: amqp.NewConnectionProperties(),
	}

	conn, err := p.dial(p.brokerURL, config)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP endpoint (vhost: %s): %w", p.vHost, err)
	}
	return conn, nil
}

// watchConnection reconnects with exponential backoff when the broker drops
// the connection, then rebinds every subscriber.
func (p *amqpMessageProvider) watchConnection(ctx context.Context, conn Connection) {
	for {
		reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
		if !ok {
			slog.Info("AMQP connection closed")
			return
		}
		slog.Warn("unexpected close of AMQP connection", "reason", reason)

		p.mx.Lock()
		p.amqpChannels = nil
		p.mx.Unlock()

		conn = p.reconnect(ctx)
		if conn == nil {
			return
		}
	}
}

func (p *amqpMessageProvider) reconnect(ctx context.Context) Connection {
	retryInterval := initialRetryInterval
	for {
		slog.Info("reconnect to AMQP broker", "delay", retryInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryInterval):
		}
		retryInterval = min(retryInterval*2, maxRetryInterval)

		conn, err := p.connect()
		if err != nil {
			slog.Error("reconnect to AMQP broker", "error", err)
			continue
		}

		if !p.rebind(ctx, conn) {
			conn.Close()
			return nil
		}

		slog.Info("successfully reconnected to AMQP broker")
		return conn
	}
}

func (p *amqpMessageProvider) rebind(ctx context.Context, conn Connection) bool {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.closed {
		return false
	}
	p.amqpClient = conn

	for _, subscr := range p.subscribers {
		ch, err := subscr.BindAndConsume(ctx, conn)
		if err != nil {
			slog.Error("bind and consume", "error", err)
			continue
		}
		p.amqpChannels = append(p.amqpChannels, ch)
	}
	return true
}

func (p *amqpMessageProvider) Subscribe(ctx context.Context, cfg MessageSubscriberConfig) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	ch, err := cfg.BindAndConsume(ctx, p.amqpClient)
	if err != nil {
		return fmt.Errorf("bind and consume: %w", err)
	}

	p.amqpChannels = append(p.amqpChannels, ch)
	p.subscribers = append(p.subscribers, cfg)

	return nil
}

func (p *amqpMessageProvider) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()

	p.closed = true

	for _, ch := range p.amqpChannels {
		err := ch.Close()
		if err != nil {
			return fmt.Errorf("close AMQP channel: %w", err)
		}
	}
	p.amqpChannels = nil

	if p.amqpClient != nil {
		err := p.amqpClient.Close()
		if err != nil {
			return fmt.Errorf("close AMQP connection: %w", err)
		}
		p.amqpClient = nil
	}

	return nil
}
