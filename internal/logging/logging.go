// Package logging builds the zerolog logger shared by deskbus components.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures Setup.
type Options struct {
	// Level is a zerolog level name. Empty means info.
	Level string

	// Format is FormatJSON or FormatConsole. Empty means FormatJSON.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Setup returns a timestamped logger for opts.
func Setup(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = l
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	switch opts.Format {
	case "", FormatJSON:
	case FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want %s or %s", opts.Format, FormatJSON, FormatConsole)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// WithComponent tags every line of l with component=name.
func WithComponent(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
