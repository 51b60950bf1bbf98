package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear relevant env vars
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "METRICS_ADDR", "LOG_LEVEL",
		"REALTIME_PROVIDER", "REALTIME_MODEL", "REALTIME_API_VERSION", "REALTIME_PATH",
		"REALTIME_NEGOTIATION_TIMEOUT", "REALTIME_SEND_BUFFER",
		"TRANSCRIPT_MAX_ENTRIES", "ARCHIVE_BACKEND", "ARCHIVE_MAX_RETRIES",
		"REFERENCE_URLS", "REFERENCE_MAX_CHARS", "KAFKA_ENABLED", "KAFKA_PRINCIPAL",
		"BUSINESS_HOURS", "BUSINESS_TIMEZONE",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-voice-intake-bridge" {
		t.Errorf("expected default principal 'svc-voice-intake-bridge', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default HTTP port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default gRPC port '50051', got %s", cfg.Service.GRPCPort)
	}

	// Realtime defaults
	if cfg.Realtime.Provider != ProviderVoiceLive {
		t.Errorf("expected default provider 'voicelive', got %s", cfg.Realtime.Provider)
	}
	if cfg.Realtime.Model != "gpt-realtime" {
		t.Errorf("expected default model 'gpt-realtime', got %s", cfg.Realtime.Model)
	}
	if cfg.Realtime.APIVersion != "2025-10-01" {
		t.Errorf("expected default api version '2025-10-01', got %s", cfg.Realtime.APIVersion)
	}
	if cfg.Realtime.NegotiationTimeout != 15*time.Second {
		t.Errorf("expected default negotiation timeout 15s, got %v", cfg.Realtime.NegotiationTimeout)
	}
	if cfg.Realtime.SendBuffer != 256 {
		t.Errorf("expected default send buffer 256, got %d", cfg.Realtime.SendBuffer)
	}

	// Session and archive defaults
	if cfg.Session.TranscriptMaxEntries != 0 {
		t.Errorf("expected unbounded transcript by default, got %d", cfg.Session.TranscriptMaxEntries)
	}
	if cfg.Archive.Backend != "log" {
		t.Errorf("expected default archive 'log', got %s", cfg.Archive.Backend)
	}
	if cfg.Archive.MaxRetries != 0 {
		t.Errorf("expected no archive retries by default, got %d", cfg.Archive.MaxRetries)
	}
	if cfg.Reference.MaxChars != 2000 {
		t.Errorf("expected default reference cap 2000, got %d", cfg.Reference.MaxChars)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("GRPC_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REALTIME_PROVIDER", "MOCK")
	t.Setenv("REALTIME_NEGOTIATION_TIMEOUT", "5s")
	t.Setenv("TRANSCRIPT_MAX_ENTRIES", "200")
	t.Setenv("ARCHIVE_BACKEND", "azure")
	t.Setenv("ARCHIVE_MAX_RETRIES", "3")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("REFERENCE_URLS", "https://example.org/, https://example.org/about/ ,")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Realtime.Provider != ProviderMock {
		t.Errorf("expected provider 'mock', got %s", cfg.Realtime.Provider)
	}
	if cfg.Realtime.NegotiationTimeout != 5*time.Second {
		t.Errorf("expected negotiation timeout 5s, got %v", cfg.Realtime.NegotiationTimeout)
	}
	if cfg.Session.TranscriptMaxEntries != 200 {
		t.Errorf("expected transcript bound 200, got %d", cfg.Session.TranscriptMaxEntries)
	}
	if cfg.Archive.MaxRetries != 3 {
		t.Errorf("expected archive retries 3, got %d", cfg.Archive.MaxRetries)
	}
	if len(cfg.Reference.URLs) != 2 || cfg.Reference.URLs[1] != "https://example.org/about/" {
		t.Errorf("unexpected reference URLs %q", cfg.Reference.URLs)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %q", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_EmptyGRPCPortDisables(t *testing.T) {
	t.Setenv("GRPC_PORT", "")

	if got := Load().Service.GRPCPort; got != "" {
		t.Errorf("expected empty gRPC port, got %q", got)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	t.Setenv("REALTIME_NEGOTIATION_TIMEOUT", "soon")
	t.Setenv("REALTIME_SEND_BUFFER", "lots")
	t.Setenv("REALTIME_DEBUG_FRAMES", "maybe")
	t.Setenv("ARCHIVE_RETRY_BACKOFF", "invalid")

	cfg := Load()

	// Should fall back to defaults on parse errors
	if cfg.Realtime.NegotiationTimeout != 15*time.Second {
		t.Errorf("expected default negotiation timeout on invalid input, got %v", cfg.Realtime.NegotiationTimeout)
	}
	if cfg.Realtime.SendBuffer != 256 {
		t.Errorf("expected default send buffer on invalid input, got %d", cfg.Realtime.SendBuffer)
	}
	if cfg.Realtime.DebugFrames {
		t.Errorf("expected default debug frames on invalid input")
	}
	if cfg.Archive.RetryBackoff != 500*time.Millisecond {
		t.Errorf("expected default retry backoff on invalid input, got %v", cfg.Archive.RetryBackoff)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "my-service")
	os.Unsetenv("KAFKA_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr bool
	}{
		{"defaults", func(c *Configuration) {}, false},
		{"azure without connection string", func(c *Configuration) {
			c.Archive.Backend = "azure"
			c.Archive.AzureConnectionString = ""
		}, true},
		{"kafka archive without brokers", func(c *Configuration) {
			c.Archive.Backend = "kafka"
		}, true},
		{"kafka archive with brokers", func(c *Configuration) {
			c.Archive.Backend = "kafka"
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"localhost:9092"}
		}, false},
		{"unknown backend", func(c *Configuration) { c.Archive.Backend = "s3" }, true},
		{"unknown provider", func(c *Configuration) { c.Realtime.Provider = "other" }, true},
		{"bad business hours", func(c *Configuration) {
			c.Telephony.ForwardNumber = "+15555550100"
			c.Telephony.BusinessHours = "17:00-09:00"
		}, true},
		{"bad timezone", func(c *Configuration) {
			c.Telephony.ForwardNumber = "+15555550100"
			c.Telephony.BusinessTimezone = "Mars/Olympus"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Configuration{
				Archive:   ArchiveConfig{Backend: "log"},
				Realtime:  RealtimeConfig{Provider: ProviderVoiceLive},
				Telephony: TelephonyConfig{BusinessHours: "09:00-17:00", BusinessTimezone: "America/Chicago"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseHours(t *testing.T) {
	start, end, err := ParseHours("09:00-17:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != 9*60 || end != 17*60+30 {
		t.Errorf("got %d-%d, want 540-1050", start, end)
	}

	for _, bad := range []string{"", "9-5", "09:00", "25:00-26:00", "10:00-10:00"} {
		if _, _, err := ParseHours(bad); err == nil {
			t.Errorf("ParseHours(%q): expected error", bad)
		}
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestLoadProfile_Defaults(t *testing.T) {
	p, err := LoadProfile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Voice.Type != "azure-hd" {
		t.Errorf("expected HD voice type for DragonHDLatest, got %s", p.Voice.Type)
	}
	if p.AudioFormat != "g711_ulaw" {
		t.Errorf("expected g711_ulaw, got %s", p.AudioFormat)
	}
	if p.TurnDetection.Type != "azure_semantic_vad" || !p.TurnDetection.InterruptResponse {
		t.Errorf("unexpected turn detection %+v", p.TurnDetection)
	}
}

func TestLoadProfile_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	body := `
greeting: "Say hello."
voice:
  name: en-US-AvaNeural
turn_detection:
  threshold: 0.5
reference_urls:
  - https://example.org/
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Greeting != "Say hello." {
		t.Errorf("greeting = %q", p.Greeting)
	}
	if p.Voice.Name != "en-US-AvaNeural" || p.Voice.Type != "azure-standard" {
		t.Errorf("voice = %+v", p.Voice)
	}
	if p.TurnDetection.Threshold != 0.5 {
		t.Errorf("threshold = %v, want 0.5", p.TurnDetection.Threshold)
	}
	if p.TurnDetection.SilenceDurationMs != 200 {
		t.Errorf("expected silence duration default kept, got %d", p.TurnDetection.SilenceDurationMs)
	}
	if p.Instructions != defaultInstructions {
		t.Error("expected default instructions kept")
	}
	if len(p.ReferenceURLs) != 1 {
		t.Errorf("reference urls = %q", p.ReferenceURLs)
	}
}

func TestLoadProfile_Errors(t *testing.T) {
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("voice: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Error("expected parse error")
	}

	path = filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte(`instructions: "  "`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Error("expected error for empty instructions")
	}
}
