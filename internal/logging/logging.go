// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/dirsync/internal/utils"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

type Options struct {
	Level slog.Level
	// Console receives colored human output. Defaults to stderr.
	Console io.Writer
	// File, if set, additionally receives every record as JSON.
	File string
}

// Setup installs the default logger. The returned func closes the log file.
func Setup(opts Options) (func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      opts.Level,
			TimeFormat: timeFormat,
			NoColor:    !isTerminal(console),
		}),
	}

	closer := func() error { return nil }
	if opts.File != "" {
		if err := utils.EnsureParent(opts.File); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: opts.Level}))
		closer = f.Close
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = NewFanout(handlers...)
	}
	slog.SetDefault(slog.New(h))
	return closer, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
