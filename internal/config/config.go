// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// STT provider names.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderMock       = "mock"
)

// PortAuto asks the server to pick the first free HTTP port.
const PortAuto = "auto"

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	Pipeline      PipelineConfig
	Observability ObservabilityConfig
	Kafka         KafkaConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal         string
	Environment       string
	HTTPPort          string
	GRPCPort          string
	FileResultTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// STTConfig selects and configures the speech-to-text provider.
type STTConfig struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// PipelineConfig bounds per-session transcription work.
type PipelineConfig struct {
	MaxChunkBytes int
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsAddr    string
	TracesExporter string
	OTLPEndpoint   string
	OTLPInsecure   bool
}

// KafkaConfig holds result fan-out settings.
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicResults  string
	TopicSessions string
	Principal     string
}

// LoadDotEnv loads variables from the given files (default .env) without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	present := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// Load reads the configuration from the environment.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "scribe-mcp-gateway")

	return &Configuration{
		Service: ServiceConfig{
			Principal:         principal,
			Environment:       envOrDefault("ENV", "production"),
			HTTPPort:          envOrDefault("HTTP_PORT", "8000"),
			GRPCPort:          grpcPort(),
			FileResultTimeout: envOrDefaultDuration("FILE_RESULT_TIMEOUT", 60*time.Second),
			ShutdownTimeout:   envOrDefaultDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		STT: STTConfig{
			Provider:   strings.ToLower(envOrDefault("STT_PROVIDER", ProviderElevenLabs)),
			APIKey:     os.Getenv("ELEVENLABS_API_KEY"),
			BaseURL:    envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
			Timeout:    envOrDefaultDuration("STT_TIMEOUT", 60*time.Second),
			MaxRetries: envOrDefaultInt("STT_MAX_RETRIES", 2),
		},
		Pipeline: PipelineConfig{
			MaxChunkBytes: envOrDefaultInt("PIPELINE_MAX_CHUNK_BYTES", 25*1024*1024),
		},
		Observability: ObservabilityConfig{
			LogLevel:       strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat:      envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr:    envOrDefault("METRICS_ADDR", ":9090"),
			TracesExporter: envOrDefault("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			OTLPInsecure:   envOrDefaultBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Kafka: KafkaConfig{
			Enabled:       envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			TopicResults:  envOrDefault("KAFKA_TOPIC_RESULTS", "scribe.transcription.result"),
			TopicSessions: os.Getenv("KAFKA_TOPIC_SESSIONS"),
			Principal:     envOrDefault("KAFKA_PRINCIPAL", principal),
		},
	}
}

// Validate reports configuration that cannot start the service.
func (c *Configuration) Validate() error {
	var errs []error

	switch c.STT.Provider {
	case ProviderElevenLabs:
		if c.STT.APIKey == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY is required when STT_PROVIDER=elevenlabs"))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown STT_PROVIDER %q", c.STT.Provider))
	}

	if c.Service.HTTPPort != PortAuto {
		if _, err := strconv.Atoi(c.Service.HTTPPort); err != nil {
			errs = append(errs, fmt.Errorf("HTTP_PORT must be a number or %q, got %q", PortAuto, c.Service.HTTPPort))
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true"))
	}

	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// grpcPort defaults to 50051; an explicitly empty GRPC_PORT disables gRPC.
func grpcPort() string {
	v, ok := os.LookupEnv("GRPC_PORT")
	if !ok {
		return "50051"
	}
	return v
}
