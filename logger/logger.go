package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatConsole = "console"
)

/*
LogConfiguration is the logger configuration, typically loaded from yaml
file and then overridden by command line flags.
*/
type LogConfiguration struct {
	// Level is one of DEBUG, INFO, WARN, ERROR. Default INFO.
	Level string `yaml:"defaultLevel"`
	// Format is one of text, json, console. Default text.
	Format string `yaml:"format"`
	// OutputPath is either file name or one of the special values stdout,
	// stderr, discard. Default stderr.
	OutputPath string `yaml:"outputPath"`
	// TimeFormat is Go time layout or "none" to drop the time attribute.
	TimeFormat string `yaml:"timeFormat"`
	// ShowSource adds source file and line of the logging call.
	ShowSource bool `yaml:"showSource"`
	// NoColor disables colors of the console format.
	NoColor bool `yaml:"noColor"`

	// Writer overrides OutputPath, mostly for tests.
	Writer io.Writer `yaml:"-"`
}

/*
New creates new logger according to configuration.
*/
func New(cfg *LogConfiguration) (*slog.Logger, error) {
	if cfg == nil {
		cfg = &LogConfiguration{}
	}
	out, err := cfg.writer()
	if err != nil {
		return nil, fmt.Errorf("creating log writer: %w", err)
	}
	h, err := cfg.handler(out)
	if err != nil {
		return nil, fmt.Errorf("creating log handler: %w", err)
	}
	return slog.New(h), nil
}

func (cfg *LogConfiguration) handler(out io.Writer) (slog.Handler, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	opts := &slog.HandlerOptions{
		AddSource: cfg.ShowSource,
		Level:     level,
	}

	switch strings.ToLower(cfg.Format) {
	case "", FormatText:
		opts.ReplaceAttr = composeAttrFmt(formatTimeAttr(cfg.TimeFormat), formatDataAttrAsJSON)
		return slog.NewTextHandler(out, opts), nil
	case FormatJSON:
		opts.ReplaceAttr = formatTimeAttr(cfg.TimeFormat)
		return slog.NewJSONHandler(out, opts), nil
	case FormatConsole:
		// JSON records are rendered for humans by zerolog console writer,
		// it consumes time in it's own default format so TimeFormat
		// is applied on output side.
		opts.ReplaceAttr = composeAttrFmt(formatAttrConsole, formatDataAttrAsJSON)
		cw := zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor, TimeFormat: consoleTimeFormat(cfg.TimeFormat)}
		return slog.NewJSONHandler(cw, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func (cfg *LogConfiguration) writer() (io.Writer, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil
	}
	switch strings.ToLower(cfg.OutputPath) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "discard":
		return io.Discard, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0700); err != nil {
			return nil, fmt.Errorf("creating directory for log file: %w", err)
		}
		f, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // -rw-------
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		return f, nil
	}
}

func consoleTimeFormat(format string) string {
	switch format {
	case "", "none":
		return "15:04:05.000"
	default:
		return format
	}
}

/*
NOP returns logger which discards everything.
*/
func NOP() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Elapsed is a helper for logging durations, rounded to milliseconds.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start).Round(time.Millisecond))
}
