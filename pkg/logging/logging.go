package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	WithCaller bool   `mapstructure:"with-caller" yaml:"with-caller"`
}

func DefaultSettings() Settings {
	return Settings{Level: "info", Format: "text"}
}

// InitLogger configures the global zerolog logger and level. It is safe to
// call again once flags have been parsed.
func InitLogger(s Settings) error {
	var out io.Writer = os.Stderr
	if s.File != "" {
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "open log file %q", s.File)
		}
		out = f
	}
	logger, err := NewLogger(s, out, isTerminal(out))
	if err != nil {
		return err
	}
	level, _ := parseLevel(s.Level)
	zerolog.SetGlobalLevel(level)
	log.Logger = logger
	return nil
}

// NewLogger builds a logger writing to out. Text format uses a console
// writer, colored only when color is true.
func NewLogger(s Settings, out io.Writer, color bool) (zerolog.Logger, error) {
	level, err := parseLevel(s.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	switch strings.ToLower(s.Format) {
	case "", "text":
		out = zerolog.ConsoleWriter{Out: out, NoColor: !color, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), errors.Errorf("unknown log format %q", s.Format)
	}
	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

func parseLevel(s string) (zerolog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel, errors.Wrapf(err, "parse log level %q", s)
	}
	return level, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
