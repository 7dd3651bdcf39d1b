package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"personal/discord_client/src/store"
)

// InstrumentedStore records a span, a latency histogram and an error counter for
// every snapshot store call. ErrNotFound from Load is not counted as an error.
type InstrumentedStore struct {
	inner    store.Store
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ store.Store = (*InstrumentedStore)(nil)

func NewInstrumentedStore(inner store.Store) (*InstrumentedStore, error) {
	meter := otel.Meter("discord_client/store")

	duration, err := meter.Float64Histogram(
		"store.operation.duration",
		metric.WithDescription("Duration of session store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"store.operation.errors",
		metric.WithDescription("Number of failed session store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		tracer:   otel.Tracer("discord_client/store"),
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "store."+operation,
		trace.WithAttributes(
			attribute.String("store.operation", operation),
			attribute.String("store.session_key", key),
		),
	)
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *InstrumentedStore) Load(ctx context.Context, key string) (*store.Snapshot, error) {
	ctx, span := s.startSpan(ctx, "load", key)
	start := time.Now()
	snap, err := s.inner.Load(ctx, key)
	s.record(ctx, span, "load", start, err)
	return snap, err
}

func (s *InstrumentedStore) Save(ctx context.Context, key string, snap store.Snapshot) error {
	ctx, span := s.startSpan(ctx, "save", key)
	span.SetAttributes(attribute.Int64("gateway.sequence", snap.Sequence))
	start := time.Now()
	err := s.inner.Save(ctx, key, snap)
	s.record(ctx, span, "save", start, err)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	ctx, span := s.startSpan(ctx, "delete", key)
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	s.record(ctx, span, "delete", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
