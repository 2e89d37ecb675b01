// Package ulogger is the logging facade used by every chainstate component.
// The default implementation is zerolog; "gocore" selects the gocore logger.
package ulogger

// console colors, shared by the pretty zerolog output
const (
	colorRed      = 31
	colorGreen    = 32
	colorYellow   = 33
	colorBlue     = 34
	colorWhite    = 37
	colorBold     = 1
)

// Logger is the printf-style logger passed to every component. Components
// prefix their messages with "[Component]" and, where one applies, the hash
// of the block or transaction.
type Logger interface {
	LogLevel() int
	SetLogLevel(level string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	// New returns a logger for another service with the same settings.
	New(service string, options ...Option) Logger
	// Duplicate returns a copy with options applied on top.
	Duplicate(options ...Option) Logger
}

// New returns the logger selected by WithLoggerType, zerolog by default.
func New(service string, options ...Option) Logger {
	if applyOptions(options...).loggerType == "gocore" {
		return NewGoCoreLogger(service, options...)
	}

	return NewZeroLogger(service, options...)
}
