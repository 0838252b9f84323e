package config

import "time"

type ServerConfig struct {
	ServiceName        string
	Port               int
	DisableTLS         bool
	TLSCertFile        string
	TLSCertKeyFile     string
	DisableTelemetry   bool
	TelemetryCollector string
}

type DecoderConfig struct {
	// Workers > 1 decodes the lines of a batch concurrently.
	Workers int
}

type ParseServerConfig struct {
	ServerConfig `mapstructure:",squash"`
	Decoder      DecoderConfig
	// MaxBulkLines rejects larger bulk requests, 0 means no limit.
	MaxBulkLines int
}

type MsgSubscriptionConfig struct {
	Type         string
	URL          string
	User         string
	Password     string
	VHost        string
	ExchangeName string
	Queue        string
	Options      map[string]string
}

type PublisherConfig struct {
	Type          string
	URL           string
	FlushInterval time.Duration
	// MaxPending bounds the records kept between failed flushes.
	MaxPending int
	Options    map[string]string
}

type DecodeWorkerConfig struct {
	ServiceName        string
	DisableTelemetry   bool
	TelemetryCollector string
	Decoder            DecoderConfig
	MsgSubscription    MsgSubscriptionConfig
	Publisher          PublisherConfig
}

type Configuration struct {
	ParseServer  ParseServerConfig
	DecodeWorker DecodeWorkerConfig
}
