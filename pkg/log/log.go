package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
	Host       string // this blade's "host:port", stamped onto every event by the OVH hook
}

// Init initializes the global logger. When OVH_LOG_API_KEY is set in the
// environment, every event gets the structured-log fields version and
// X-OVH-TOKEN, plus host when cfg.Host is set, via ovhHook. No line field
// is added.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var base zerolog.Logger
	if cfg.JSONOutput {
		base = zerolog.New(output).With().Timestamp().Logger()
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}

	if apiKey := os.Getenv("OVH_LOG_API_KEY"); apiKey != "" {
		base = base.Hook(ovhHook{apiKey: apiKey, host: cfg.Host})
	}

	Logger = base
}

// ovhHook stamps the fields the OVH structured-log intake silently requires,
// so OVH_LOG_API_KEY can point straight at this logger without a shipper.
type ovhHook struct {
	apiKey string
	host   string
}

func (h ovhHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	e.Str("version", "1.1")
	e.Str("X-OVH-TOKEN", h.apiKey)
	if h.host != "" {
		e.Str("host", h.host)
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithHost creates a child logger scoped to a blade's host:port
func WithHost(host string) zerolog.Logger {
	return Logger.With().Str("host", host).Logger()
}

// WithBlade creates a child logger scoped to a blade name
func WithBlade(name string) zerolog.Logger {
	return Logger.With().Str("blade", name).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
