/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/justinas/alice"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/valri11/go-servicepack/middleware/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/valri11/usagedecoder/config"
	"github.com/valri11/usagedecoder/metrics"
	"github.com/valri11/usagedecoder/parser"
	"github.com/valri11/usagedecoder/telemetry"
	"github.com/valri11/usagedecoder/types"
)

const maxBulkBodyBytes = 10 << 20

var errInvalidBulkBody = errors.New("body must be a JSON string or an array of strings")

// parseServerCmd represents the parseserver command
var parseServerCmd = &cobra.Command{
	Use:   "parseserver",
	Short: "HTTP service decoding usage lines",
	Long: `parseserver decodes usage lines over HTTP.

  GET  /parse?input=<line>   decode one line
  GET  /bulk-parse           decode a JSON array of lines (or a single JSON string)
  POST /bulk-parse
  GET  /livez

A response is 404 when a line could not be decoded; the body still carries
the records, with the failed ones replaced by a record holding the error.`,
	Run: doParseServerCmd,
}

func init() {
	rootCmd.AddCommand(parseServerCmd)

	parseServerCmd.Flags().Int("port", 8080, "service port to listen")
	parseServerCmd.Flags().String("service-name", "usage-parser", "service name reported to telemetry")
	parseServerCmd.Flags().BoolP("disable-tls", "", false, "development mode (http on loclahost)")
	parseServerCmd.Flags().String("tls-cert", "", "TLS certificate file")
	parseServerCmd.Flags().String("tls-cert-key", "", "TLS certificate key file")
	parseServerCmd.Flags().BoolP("disable-telemetry", "", false, "disable telemetry publishing")
	parseServerCmd.Flags().String("telemetry-collector", "", "open telemetry grpc collector")
	parseServerCmd.Flags().Int("workers", 1, "lines of a bulk request decoded concurrently")
	parseServerCmd.Flags().Int("max-bulk-lines", 0, "reject bulk requests with more lines (0 - no limit)")

	viper.BindEnv("parseserver.disabletelemetry", "OTEL_SDK_DISABLED")
	viper.BindEnv("parseserver.telemetrycollector", "OTEL_EXPORTER_OTLP_ENDPOINT")

	viper.BindPFlag("parseserver.port", parseServerCmd.Flags().Lookup("port"))
	viper.BindPFlag("parseserver.servicename", parseServerCmd.Flags().Lookup("service-name"))
	viper.BindPFlag("parseserver.disabletls", parseServerCmd.Flags().Lookup("disable-tls"))
	viper.BindPFlag("parseserver.tlscertfile", parseServerCmd.Flags().Lookup("tls-cert"))
	viper.BindPFlag("parseserver.tlscertkeyfile", parseServerCmd.Flags().Lookup("tls-cert-key"))
	viper.BindPFlag("parseserver.disabletelemetry", parseServerCmd.Flags().Lookup("disable-telemetry"))
	viper.BindPFlag("parseserver.telemetrycollector", parseServerCmd.Flags().Lookup("telemetry-collector"))
	viper.BindPFlag("parseserver.decoder.workers", parseServerCmd.Flags().Lookup("workers"))
	viper.BindPFlag("parseserver.maxbulklines", parseServerCmd.Flags().Lookup("max-bulk-lines"))

	viper.AutomaticEnv()
}

type parseSrvHandler struct {
	cfg     config.ParseServerConfig
	tracer  trace.Tracer
	metrics *metrics.AppMetrics
	parser  *parser.Parser
}

func doParseServerCmd(cmd *cobra.Command, args []string) {
	slog.SetDefault(newLogger())

	var cfg config.Configuration
	err := viper.Unmarshal(&cfg)
	if err != nil {
		log.Fatalf("ERR: %v", err)
		return
	}
	slog.Debug("config", "cfg", cfg.ParseServer)

	ctx := context.Background()
	// Handle SIGINT (CTRL+C) gracefully.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	shutdown, err := telemetry.InitProviders(context.Background(), telemetry.Config{
		Disabled:    cfg.ParseServer.DisableTelemetry,
		ServiceName: cfg.ParseServer.ServiceName,
		Collector:   cfg.ParseServer.TelemetryCollector,
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

	h, err := newParseSrvHandler(cfg.ParseServer,
		otel.Tracer(cfg.ParseServer.ServiceName),
		otel.GetMeterProvider().Meter(cfg.ParseServer.ServiceName))
	if err != nil {
		slog.Error("create parse handler", "error", err)
		return
	}

	// start server listen with error handling
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.ParseServer.Port),
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
		Handler:      h.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("server started", "port", cfg.ParseServer.Port)
		if cfg.ParseServer.DisableTLS {
			srvErr <- srv.ListenAndServe()
		} else {
			srvErr <- srv.ListenAndServeTLS(cfg.ParseServer.TLSCertFile, cfg.ParseServer.TLSCertKeyFile)
		}
	}()

	// Wait for interruption.
	select {
	case err := <-srvErr:
		// Error when starting HTTP server.
		slog.Error("server stopped", "error", err)
		return
	case <-ctx.Done():
		// Wait for first CTRL+C.
		// Stop receiving signal notifications as soon as possible.
		stop()
	}

	// When Shutdown is called, ListenAndServe immediately returns ErrServerClosed.
	srv.Shutdown(context.Background())
}

func newParseSrvHandler(cfg config.ParseServerConfig, tracer trace.Tracer, meter metric.Meter) (*parseSrvHandler, error) {
	appMetrics, err := metrics.NewAppMetrics(meter)
	if err != nil {
		return nil, err
	}

	h := parseSrvHandler{
		cfg:     cfg,
		tracer:  tracer,
		metrics: appMetrics,
		parser: parser.NewParser(
			parser.WithWorkers(cfg.Decoder.Workers),
			parser.WithObserver(appMetrics),
		),
	}
	return &h, nil
}

func (h *parseSrvHandler) routes() http.Handler {
	mux := http.NewServeMux()

	mwChain := []alice.Constructor{
		cors.CORS,
		telemetry.WithOtelTracerContext(h.tracer),
		telemetry.WithRequestLog(),
		metrics.WithMetrics(h.metrics),
	}
	handlerChain := alice.New(mwChain...).Then

	mux.Handle("/parse",
		handlerChain(
			otelhttp.NewHandler(http.HandlerFunc(h.parseHandler), "parse")))
	mux.Handle("/bulk-parse",
		handlerChain(
			otelhttp.NewHandler(http.HandlerFunc(h.bulkParseHandler), "bulk_parse")))
	mux.Handle("/livez",
		handlerChain(
			otelhttp.NewHandler(http.HandlerFunc(h.livezHandler), "livez")))

	return mux
}

func (h *parseSrvHandler) parseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	tracer := telemetry.MustTracerFromContext(ctx)
	ctx, span := tracer.Start(ctx, "parseHandler")
	defer span.End()

	records := h.parser.Parse(ctx, []string{r.URL.Query().Get("input")})
	rec := records[0]

	status := http.StatusOK
	if rec.Failed() {
		status = http.StatusNotFound
		slog.WarnContext(ctx, "parse failed",
			"code", status, "type", "ParseFailure", "error", rec.Error)
	}

	writeJSON(w, status, rec)
}

func (h *parseSrvHandler) bulkParseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	tracer := telemetry.MustTracerFromContext(ctx)
	ctx, span := tracer.Start(ctx, "bulkParseHandler")
	defer span.End()

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBulkBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Read request body", http.StatusBadRequest)
		return
	}

	lines, err := decodeBulkInput(body)
	if err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int("lines", len(lines)))

	if h.cfg.MaxBulkLines > 0 && len(lines) > h.cfg.MaxBulkLines {
		http.Error(w,
			fmt.Sprintf("Too many lines: %d, limit %d", len(lines), h.cfg.MaxBulkLines),
			http.StatusRequestEntityTooLarge)
		return
	}

	records := h.parser.Parse(ctx, lines)

	failed := countFailed(records)
	status := http.StatusOK
	if failed > 0 {
		status = http.StatusNotFound
		errType := "SomeInputLinesHadErrors"
		if failed == len(records) {
			errType = "AllInputLinesHadErrors"
		}
		slog.WarnContext(ctx, "bulk parse failed",
			"code", status, "type", errType, "lines", len(records), "failed", failed)
	}

	writeJSON(w, status, records)
}

func (h *parseSrvHandler) livezHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tracer := telemetry.MustTracerFromContext(ctx)
	_, span := tracer.Start(ctx, "livezHandler")
	defer span.End()

	res := struct {
		Status string `json:"status"`
	}{
		Status: "ok",
	}

	writeJSON(w, http.StatusOK, res)
}

// decodeBulkInput accepts a JSON array of strings or a single JSON string.
func decodeBulkInput(body []byte) ([]string, error) {
	var lines []string
	if err := json.Unmarshal(body, &lines); err == nil {
		return lines, nil
	}

	var line string
	if err := json.Unmarshal(body, &line); err == nil {
		return []string{line}, nil
	}

	return nil, errInvalidBulkBody
}

func countFailed(records []types.UsageRecord) int {
	var n int
	for _, rec := range records {
		if rec.Failed() {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	out, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(out)
}
