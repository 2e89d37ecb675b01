package tracing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func initTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(recorder),
	)

	otel.SetTracerProvider(provider)
	setTestTracerProvider(provider)

	t.Cleanup(func() {
		_ = ShutdownTracer(context.Background())
	})

	return recorder
}

func TestUTracer_WithError(t *testing.T) {
	recorder := initTestTracer(t)
	logger := newLineLogger()

	_, _, endFn := Tracer("test-service").Start(context.Background(), "OperationWithError",
		WithLogMessage(logger, "Processing operation"),
	)

	endFn(errors.NewProcessingError("test error occurred"))

	assert.Contains(t, logger.lastLog, "Processing operation DONE in")
	assert.Contains(t, logger.lastLog, "with error:")
	assert.Contains(t, logger.lastLog, "test error occurred")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "OperationWithError", spans[0].Name())
	assert.Len(t, spans[0].Events(), 1)
}

func TestUTracer_ChildSpans(t *testing.T) {
	recorder := initTestTracer(t)
	tracer := Tracer("test-service")

	ctx, parentSpan, endParent := tracer.Start(context.Background(), "ParentOperation",
		WithTag("hash", "0000000000000000000000000000000000000000000000000000000000000000"),
	)

	parentStat := StatFromContext(ctx)

	childCtx, childSpan, endChild := tracer.Start(ctx, "ChildOperation")
	assert.NotSame(t, parentStat, StatFromContext(childCtx))
	assert.Equal(t, parentSpan.SpanContext().TraceID(), childSpan.SpanContext().TraceID())

	endChild()
	endParent()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ChildOperation", spans[0].Name())
	assert.Equal(t, parentSpan.SpanContext().SpanID(), spans[0].Parent().SpanID())
}

func TestUTracer_Metrics(t *testing.T) {
	initTestTracer(t)

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_duration_seconds"})
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total"})

	_, _, endFn := Tracer("test-service").Start(context.Background(), "Measured",
		WithHistogram(histogram),
		WithCounter(counter),
	)

	time.Sleep(time.Millisecond)
	endFn()

	assert.InDelta(t, 1.0, testutil.ToFloat64(counter), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(histogram))
}

func TestShutdownWithoutInit(t *testing.T) {
	setTestTracerProvider(nil)
	require.NoError(t, ShutdownTracer(context.Background()))
}

type lineLogger struct {
	lastLog string
}

func newLineLogger() *lineLogger {
	return &lineLogger{}
}

func (l *lineLogger) New(string, ...ulogger.Option) ulogger.Logger { return l }
func (l *lineLogger) Duplicate(...ulogger.Option) ulogger.Logger    { return l }
func (l *lineLogger) LogLevel() int                                 { return 0 }
func (l *lineLogger) SetLogLevel(string)                            {}

func (l *lineLogger) Debugf(format string, args ...interface{}) { l.log(format, args...) }
func (l *lineLogger) Infof(format string, args ...interface{})  { l.log(format, args...) }
func (l *lineLogger) Warnf(format string, args ...interface{})  { l.log(format, args...) }
func (l *lineLogger) Errorf(format string, args ...interface{}) { l.log(format, args...) }
func (l *lineLogger) Fatalf(format string, args ...interface{}) { l.log(format, args...) }

func (l *lineLogger) log(format string, args ...interface{}) {
	l.lastLog = fmt.Sprintf(format, args...)
}

func setTestTracerProvider(provider *sdktrace.TracerProvider) {
	mu.Lock()
	defer mu.Unlock()
	tp = provider
}
