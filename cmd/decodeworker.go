/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/valri11/usagedecoder/config"
	"github.com/valri11/usagedecoder/metrics"
	"github.com/valri11/usagedecoder/parser"
	"github.com/valri11/usagedecoder/publisher"
	"github.com/valri11/usagedecoder/subscriber"
	"github.com/valri11/usagedecoder/telemetry"
	"github.com/valri11/usagedecoder/usage"
)

// decodeWorkerCmd represents the decodeworker command
var decodeWorkerCmd = &cobra.Command{
	Use:   "decodeworker",
	Short: "Decode usage lines consumed from a message broker",
	Long: `decodeworker consumes messages of raw usage lines (one per line) from
RabbitMQ or Kafka, decodes them and publishes the records over HTTP,
RabbitMQ or Kafka.

Messages with no lines are rejected. Messages whose records could not be
published are requeued.`,
	Run: doDecodeWorkerCmd,
}

func init() {
	rootCmd.AddCommand(decodeWorkerCmd)

	decodeWorkerCmd.Flags().String("service-name", "usage-decode-worker", "service name reported to telemetry")
	decodeWorkerCmd.Flags().BoolP("disable-telemetry", "", false, "disable telemetry publishing")
	decodeWorkerCmd.Flags().String("telemetry-collector", "", "open telemetry grpc collector")
	decodeWorkerCmd.Flags().Int("workers", 1, "lines of a message decoded concurrently")
	decodeWorkerCmd.Flags().String("subscription-type", "amqp", "message broker type (amqp, kafka)")
	decodeWorkerCmd.Flags().String("broker-url", "", "message broker URL")
	decodeWorkerCmd.Flags().String("broker-queue", "", "message broker queue name to consume")
	decodeWorkerCmd.Flags().String("publisher-type", "http", "decoded records sink (http, amqp, kafka)")
	decodeWorkerCmd.Flags().String("publisher-url", "", "decoded records sink URL")
	decodeWorkerCmd.Flags().Int("max-pending", 10000, "records kept while publishing fails, oldest dropped beyond it")
	decodeWorkerCmd.Flags().Duration("flush-interval", 0, "batch records and publish them at this interval (0 - publish immediately)")

	viper.BindEnv("decodeworker.disabletelemetry", "OTEL_SDK_DISABLED")
	viper.BindEnv("decodeworker.telemetrycollector", "OTEL_EXPORTER_OTLP_ENDPOINT")

	viper.BindPFlag("decodeworker.servicename", decodeWorkerCmd.Flags().Lookup("service-name"))
	viper.BindPFlag("decodeworker.disabletelemetry", decodeWorkerCmd.Flags().Lookup("disable-telemetry"))
	viper.BindPFlag("decodeworker.telemetrycollector", decodeWorkerCmd.Flags().Lookup("telemetry-collector"))
	viper.BindPFlag("decodeworker.decoder.workers", decodeWorkerCmd.Flags().Lookup("workers"))
	viper.BindPFlag("decodeworker.msgsubscription.type", decodeWorkerCmd.Flags().Lookup("subscription-type"))
	viper.BindPFlag("decodeworker.msgsubscription.url", decodeWorkerCmd.Flags().Lookup("broker-url"))
	viper.BindPFlag("decodeworker.msgsubscription.queue", decodeWorkerCmd.Flags().Lookup("broker-queue"))
	viper.BindPFlag("decodeworker.publisher.type", decodeWorkerCmd.Flags().Lookup("publisher-type"))
	viper.BindPFlag("decodeworker.publisher.url", decodeWorkerCmd.Flags().Lookup("publisher-url"))
	viper.BindPFlag("decodeworker.publisher.flushinterval", decodeWorkerCmd.Flags().Lookup("flush-interval"))
	viper.BindPFlag("decodeworker.publisher.maxpending", decodeWorkerCmd.Flags().Lookup("max-pending"))

	viper.AutomaticEnv()
}

func doDecodeWorkerCmd(cmd *cobra.Command, args []string) {
	slog.SetDefault(newLogger())

	var cfg config.Configuration
	err := viper.Unmarshal(&cfg)
	if err != nil {
		log.Fatalf("ERR: %v", err)
		return
	}
	wcfg := cfg.DecodeWorker
	slog.Debug("config",
		"subscription", wcfg.MsgSubscription.Type,
		"publisher", wcfg.Publisher.Type,
		"workers", wcfg.Decoder.Workers)

	ctx := context.Background()
	// Handle SIGINT (CTRL+C) gracefully.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	shutdown, err := telemetry.InitProviders(context.Background(), telemetry.Config{
		Disabled:    wcfg.DisableTelemetry,
		ServiceName: wcfg.ServiceName,
		Collector:   wcfg.TelemetryCollector,
		LogLevel:    slog.LevelDebug,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("shutdown telemetry providers", "error", err)
		}
	}()

	ctx = telemetry.NewContextWithTracer(ctx, otel.Tracer(wcfg.ServiceName))

	appMetrics, err := metrics.NewAppMetrics(otel.GetMeterProvider().Meter(wcfg.ServiceName))
	if err != nil {
		slog.Error("create metrics", "error", err)
		return
	}

	pub, err := publisher.New(wcfg.Publisher.Type, wcfg.Publisher.URL, wcfg.Publisher.Options)
	if err != nil {
		slog.Error("create record publisher", "error", err)
		return
	}
	defer func() {
		if err := pub.Close(); err != nil {
			slog.Error("close record publisher", "error", err)
		}
	}()

	reporter := usage.NewRecordReporter(pub,
		usage.WithFlushInterval(wcfg.Publisher.FlushInterval),
		usage.WithMaxPending(wcfg.Publisher.MaxPending),
	)
	defer func() {
		if err := reporter.Close(); err != nil {
			slog.Error("flush pending records", "error", err)
		}
	}()

	decoder := usage.NewLineDecoder(
		parser.NewParser(
			parser.WithWorkers(wcfg.Decoder.Workers),
			parser.WithObserver(appMetrics),
		),
		reporter,
	)

	msgProvider, err := newMessageProvider(ctx, wcfg.MsgSubscription, decoder.ProcessMessage)
	if err != nil {
		slog.Error("subscribe", "error", err)
		return
	}
	defer func() {
		if err := msgProvider.Close(); err != nil {
			slog.Error("close message provider", "error", err)
		}
	}()

	slog.Info("decode worker started",
		"subscription", wcfg.MsgSubscription.Type,
		"publisher", wcfg.Publisher.Type)

	<-ctx.Done()
	stop()

	slog.Info("decode worker stopping")
}

func newMessageProvider(
	ctx context.Context,
	cfg config.MsgSubscriptionConfig,
	handler subscriber.MessageHandler,
) (subscriber.MessageProvider, error) {
	switch cfg.Type {
	case "amqp":
		brokerURL, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL: %w", err)
		}

		// Create a UserInfo object with the username and password
		if cfg.User != "" {
			brokerURL.User = url.UserPassword(cfg.User, cfg.Password)
		}

		msgProvider, err := subscriber.NewAMQPMessageProvider(
			ctx,
			brokerURL.String(),
			cfg.VHost,
			subscriber.DefaultDialer,
		)
		if err != nil {
			return nil, fmt.Errorf("create amqp message provider: %w", err)
		}

		hostname, _ := os.Hostname()
		msgSubscriberCfg := subscriber.NewMessageSubscriberConfig(
			cfg.ExchangeName,
			cfg.Queue,
			hostname,
			nil,
			handler,
		)

		err = msgProvider.Subscribe(ctx, msgSubscriberCfg)
		if err != nil {
			msgProvider.Close()
			return nil, fmt.Errorf("subscribe line decoder: %w", err)
		}
		return msgProvider, nil

	case "kafka":
		msgProvider, err := subscriber.NewKafkaMessageProvider(
			cfg.URL,
			cfg.Options,
			handler,
		)
		if err != nil {
			return nil, fmt.Errorf("create kafka message provider: %w", err)
		}

		err = msgProvider.Subscribe(ctx, &subscriber.MsgSubscriberConfig{})
		if err != nil {
			return nil, fmt.Errorf("subscribe line decoder: %w", err)
		}
		return msgProvider, nil

	default:
		return nil, fmt.Errorf("unknown message provider: %s", cfg.Type)
	}
}
