// Package config loads service configuration from the environment and the
// optional YAML session profile.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Realtime providers.
const (
	ProviderVoiceLive = "voicelive"
	ProviderMock      = "mock"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	Realtime      RealtimeConfig
	Session       SessionConfig
	Reference     ReferenceConfig
	Archive       ArchiveConfig
	Kafka         KafkaConfig
	Telephony     TelephonyConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsAddr string
}

// RealtimeConfig holds the AI realtime connection settings.
type RealtimeConfig struct {
	Provider           string // voicelive, mock
	Endpoint           string
	APIKey             string
	Model              string
	APIVersion         string
	Path               string
	HandshakeTimeout   time.Duration
	NegotiationTimeout time.Duration
	SendBuffer         int
	DebugFrames        bool
}

// SessionConfig holds per-call limits.
type SessionConfig struct {
	ProfilePath          string
	TranscriptMaxEntries int
}

// ReferenceConfig holds reference text fetching settings.
type ReferenceConfig struct {
	URLs     []string
	MaxChars int
	Timeout  time.Duration
	CacheTTL time.Duration
}

// ArchiveConfig selects and configures the artifact store.
type ArchiveConfig struct {
	Backend               string // log, azure, firestore, kafka
	MaxRetries            int
	RetryBackoff          time.Duration
	WriteTimeout          time.Duration
	AzureConnectionString string
	AzureContainer        string
	FirestoreProjectID    string
	FirestoreCredentials  string
	FirestoreCollection   string
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicPartial   string
	TopicFinal     string
	TopicArtifacts string
	Principal      string
}

// TelephonyConfig holds settings for the call webhook.
type TelephonyConfig struct {
	PublicHost       string
	ForwardNumber    string
	BusinessHours    string
	BusinessTimezone string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
	Env       string
}

// Load reads configuration from the environment. Unparseable values fall
// back to their defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-intake-bridge")

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefaultAllowEmpty("GRPC_PORT", "50051"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		Realtime: RealtimeConfig{
			Provider:           strings.ToLower(envOrDefault("REALTIME_PROVIDER", ProviderVoiceLive)),
			Endpoint:           os.Getenv("REALTIME_ENDPOINT"),
			APIKey:             os.Getenv("REALTIME_API_KEY"),
			Model:              envOrDefault("REALTIME_MODEL", "gpt-realtime"),
			APIVersion:         envOrDefault("REALTIME_API_VERSION", "2025-10-01"),
			Path:               envOrDefault("REALTIME_PATH", "/voice-live/realtime"),
			HandshakeTimeout:   envOrDefaultDuration("REALTIME_HANDSHAKE_TIMEOUT", 10*time.Second),
			NegotiationTimeout: envOrDefaultDuration("REALTIME_NEGOTIATION_TIMEOUT", 15*time.Second),
			SendBuffer:         envOrDefaultInt("REALTIME_SEND_BUFFER", 256),
			DebugFrames:        envOrDefaultBool("REALTIME_DEBUG_FRAMES", false),
		},
		Session: SessionConfig{
			ProfilePath:          os.Getenv("SESSION_PROFILE_PATH"),
			TranscriptMaxEntries: envOrDefaultInt("TRANSCRIPT_MAX_ENTRIES", 0),
		},
		Reference: ReferenceConfig{
			URLs:     envOrDefaultList("REFERENCE_URLS", nil),
			MaxChars: envOrDefaultInt("REFERENCE_MAX_CHARS", 2000),
			Timeout:  envOrDefaultDuration("REFERENCE_TIMEOUT", 10*time.Second),
			CacheTTL: envOrDefaultDuration("REFERENCE_CACHE_TTL", 15*time.Minute),
		},
		Archive: ArchiveConfig{
			Backend:               strings.ToLower(envOrDefault("ARCHIVE_BACKEND", "log")),
			MaxRetries:            envOrDefaultInt("ARCHIVE_MAX_RETRIES", 0),
			RetryBackoff:          envOrDefaultDuration("ARCHIVE_RETRY_BACKOFF", 500*time.Millisecond),
			WriteTimeout:          envOrDefaultDuration("ARCHIVE_WRITE_TIMEOUT", 30*time.Second),
			AzureConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),
			AzureContainer:        envOrDefault("AZURE_STORAGE_CONTAINER", "calls"),
			FirestoreProjectID:    os.Getenv("FIRESTORE_PROJECT_ID"),
			FirestoreCredentials:  os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
			FirestoreCollection:   envOrDefault("FIRESTORE_COLLECTION", "calls"),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        envOrDefaultList("KAFKA_BROKERS", nil),
			TopicPartial:   envOrDefault("KAFKA_TOPIC_PARTIAL", "call.transcript.partial"),
			TopicFinal:     envOrDefault("KAFKA_TOPIC_FINAL", "call.transcript.final"),
			TopicArtifacts: envOrDefault("KAFKA_TOPIC_ARTIFACTS", "call.artifacts"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Telephony: TelephonyConfig{
			PublicHost:       os.Getenv("PUBLIC_HOST"),
			ForwardNumber:    os.Getenv("FORWARD_NUMBER"),
			BusinessHours:    envOrDefault("BUSINESS_HOURS", "09:00-17:00"),
			BusinessTimezone: envOrDefault("BUSINESS_TIMEZONE", "America/Chicago"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
			Env:       os.Getenv("ENV"),
		},
	}
}

// Validate reports settings that cannot work together. The service can still
// start: main falls back to the log-only archive.
func (c *Configuration) Validate() error {
	var errs []error

	switch c.Archive.Backend {
	case "log", "":
	case "azure":
		if c.Archive.AzureConnectionString == "" {
			errs = append(errs, errors.New("ARCHIVE_BACKEND=azure requires AZURE_STORAGE_CONNECTION_STRING"))
		}
	case "firestore":
	case "kafka":
		if !c.Kafka.Enabled || len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("ARCHIVE_BACKEND=kafka requires KAFKA_ENABLED and KAFKA_BROKERS"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ARCHIVE_BACKEND %q", c.Archive.Backend))
	}

	switch c.Realtime.Provider {
	case ProviderVoiceLive, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown REALTIME_PROVIDER %q", c.Realtime.Provider))
	}

	if c.Telephony.ForwardNumber != "" {
		if _, _, err := ParseHours(c.Telephony.BusinessHours); err != nil {
			errs = append(errs, err)
		}
		if _, err := time.LoadLocation(c.Telephony.BusinessTimezone); err != nil {
			errs = append(errs, fmt.Errorf("BUSINESS_TIMEZONE: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ParseHours parses a "HH:MM-HH:MM" window into minutes after midnight.
func ParseHours(s string) (start, end int, err error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("business hours %q: want HH:MM-HH:MM", s)
	}
	if start, err = parseClock(from); err != nil {
		return 0, 0, fmt.Errorf("business hours %q: %w", s, err)
	}
	if end, err = parseClock(to); err != nil {
		return 0, 0, fmt.Errorf("business hours %q: %w", s, err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("business hours %q: end must be after start", s)
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envOrDefaultAllowEmpty returns def only when key is unset, so an explicit
// empty value can disable a listener.
func envOrDefaultAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
