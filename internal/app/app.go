package app

import (
	"time"

	"github.com/rs/zerolog"

	"voice-intake-bridge/internal/config"
	"voice-intake-bridge/internal/observability/logging"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Profile     config.Profile
}

// New constructs a new Application from the provided configuration and
// installs the global logger.
func New(cfg *config.Configuration, profile config.Profile) *Application {
	a := &Application{
		Cfg:     cfg,
		Profile: profile,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().
		Str("provider", cfg.Realtime.Provider).
		Str("archive", cfg.Archive.Backend).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Voice intake bridge application created")
	return a
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	obs := a.Cfg.Observability
	logCfg := logging.DefaultConfig()
	logCfg.Level = obs.LogLevel
	logCfg.Format = obs.LogFormat
	logging.Init(logCfg)

	a.Logger = logging.WithComponent("application").With().
		Str("service", "voice-intake-bridge").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", obs.Env).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("httpPort", a.Cfg.Service.HTTPPort).
		Str("grpcPort", a.Cfg.Service.GRPCPort).
		Str("metricsAddr", a.Cfg.Service.MetricsAddr).
		Msg("Voice intake bridge starting")

	return nil
}

// Uptime reports how long the service has been serving.
func (a *Application) Uptime() time.Duration {
	if a.StartupTime.IsZero() {
		return 0
	}
	return time.Since(a.StartupTime)
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().
		Dur("uptime", a.Uptime()).
		Msg("Voice intake bridge shutting down")
}
