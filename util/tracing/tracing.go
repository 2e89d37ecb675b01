// Package tracing times operations three ways at once: a gocore stat, an
// optional prometheus histogram and an OpenTelemetry span.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type statsKey struct{}

var rootStat = gocore.NewStat("chainstate", true)

type Options func(s *TraceOptions)

type TraceOptions struct {
	Histogram  prometheus.Histogram
	Counter    prometheus.Counter
	Tags       []attribute.KeyValue
	Logger     ulogger.Logger
	LogMessage string
	LogArgs    []interface{}
	Debug      bool
}

// WithHistogram sets the histogram that receives the duration in seconds.
func WithHistogram(histogram prometheus.Histogram) Options {
	return func(s *TraceOptions) {
		s.Histogram = histogram
	}
}

func WithCounter(counter prometheus.Counter) Options {
	return func(s *TraceOptions) {
		s.Counter = counter
	}
}

func WithTag(key, value string) Options {
	return func(s *TraceOptions) {
		s.Tags = append(s.Tags, attribute.String(key, value))
	}
}

// WithLogMessage logs format at INFO when the span starts and again, with
// the elapsed time, when it ends.
func WithLogMessage(logger ulogger.Logger, format string, args ...interface{}) Options {
	return func(s *TraceOptions) {
		s.Logger = logger
		s.LogMessage = format
		s.LogArgs = args
	}
}

// WithDebugLogMessage is WithLogMessage at DEBUG level.
func WithDebugLogMessage(logger ulogger.Logger, format string, args ...interface{}) Options {
	return func(s *TraceOptions) {
		s.Logger = logger
		s.LogMessage = format
		s.LogArgs = args
		s.Debug = true
	}
}

// UTracer starts spans for one service.
type UTracer struct {
	name   string
	tracer trace.Tracer
}

func Tracer(name string) *UTracer {
	return &UTracer{
		name:   name,
		tracer: otel.Tracer(name),
	}
}

// Start begins a span. The returned function ends it; passing a non-nil error
// records the error on the span and in the closing log line.
func (u *UTracer) Start(ctx context.Context, spanName string, opts ...Options) (context.Context, trace.Span, func(...error)) {
	options := &TraceOptions{}
	for _, opt := range opts {
		opt(options)
	}

	ctx, span := u.tracer.Start(ctx, spanName, trace.WithAttributes(options.Tags...))

	stat := StatFromContext(ctx).NewStat(spanName, true)
	ctx = context.WithValue(ctx, statsKey{}, stat)

	start := gocore.CurrentTime()
	startedAt := time.Now()

	logf := func(format string, args ...interface{}) {
		if options.Debug {
			options.Logger.Debugf(format, args...)
		} else {
			options.Logger.Infof(format, args...)
		}
	}

	if options.Logger != nil && options.LogMessage != "" {
		logf(options.LogMessage, options.LogArgs...)
	}

	return ctx, span, func(errs ...error) {
		var err error

		for _, e := range errs {
			if e != nil {
				err = e
				break
			}
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
		stat.AddTime(start)

		elapsed := time.Since(startedAt)

		if options.Histogram != nil {
			options.Histogram.Observe(elapsed.Seconds())
		}

		if options.Counter != nil {
			options.Counter.Inc()
		}

		if options.Logger != nil && options.LogMessage != "" {
			done := fmt.Sprintf(" DONE in %s", elapsed)
			if err != nil {
				done += fmt.Sprintf(" with error: %v", err)
			}

			logf(options.LogMessage+done, options.LogArgs...)
		}
	}
}

// StatFromContext returns the stat of the innermost span started on ctx.
func StatFromContext(ctx context.Context) *gocore.Stat {
	if stat, ok := ctx.Value(statsKey{}).(*gocore.Stat); ok {
		return stat
	}

	return rootStat
}
