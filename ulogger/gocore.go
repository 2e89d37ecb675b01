package ulogger

import (
	"github.com/ordishs/gocore"
)

// GoCoreLogger routes log lines through gocore, which also serves them on the
// gocore stats page. Its level is fixed at creation.
type GoCoreLogger struct {
	*gocore.Logger
	skipFrame int
}

func NewGoCoreLogger(service string, options ...Option) *GoCoreLogger {
	if service == "" {
		service = defaultService
	}

	opts := applyOptions(options...)

	return &GoCoreLogger{
		Logger:    gocore.Log(service, gocore.NewLogLevelFromString(opts.logLevel)),
		skipFrame: opts.skip,
	}
}

func (g *GoCoreLogger) New(service string, options ...Option) Logger {
	return &GoCoreLogger{
		Logger:    gocore.Log(service, g.Logger.GetLogLevel()),
		skipFrame: applyOptions(options...).skip,
	}
}

// Duplicate shares the underlying gocore logger; only the skip frame can change.
func (g *GoCoreLogger) Duplicate(options ...Option) Logger {
	dup := &GoCoreLogger{Logger: g.Logger, skipFrame: g.skipFrame}

	if opts := applyOptions(options...); opts.skip != 0 {
		dup.skipFrame = opts.skip
	}

	return dup
}

func (g *GoCoreLogger) SetLogLevel(_ string) {}
