// Package logging builds the zerolog logger shared by the bot.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure New.
type Options struct {
	Level string
	// File enables a rotating log file next to console output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Report receives every entry as JSON and forwards the errors.
	Report *Reporter
}

// New returns a console logger, teed to a rotating file when opts.File is set
// and to opts.Report when given.
func New(opts Options) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "01-02-2006 15:04"}

	if opts.File != "" {
		rotate := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotate)
	}
	if opts.Report != nil {
		out = zerolog.MultiLevelWriter(out, opts.Report)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
