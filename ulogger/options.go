package ulogger

import (
	"io"
	"os"
)

const defaultService = "chainstate"

type Options struct {
	logLevel   string
	loggerType string
	writer     io.Writer
	skip       int
}

type Option func(*Options)

func DefaultOptions() *Options {
	return &Options{
		logLevel:   "INFO",
		loggerType: "zerolog",
		writer:     os.Stdout,
	}
}

func applyOptions(options ...Option) *Options {
	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	return opts
}

// WithLevel sets the minimum level: DEBUG, INFO, WARN, ERROR or FATAL.
func WithLevel(level string) Option {
	return func(o *Options) {
		o.logLevel = level
	}
}

// WithLoggerType selects "zerolog" or "gocore".
func WithLoggerType(loggerType string) Option {
	return func(o *Options) {
		o.loggerType = loggerType
	}
}

func WithWriter(w io.Writer) Option {
	return func(o *Options) {
		o.writer = w
	}
}

// WithSkipFrame adds frames to skip when reporting the caller.
func WithSkipFrame(skip int) Option {
	return func(o *Options) {
		o.skip = skip
	}
}
