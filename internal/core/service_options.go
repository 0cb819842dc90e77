package core

import (
	"context"
	"time"

	"relicforge/pkg/domain"
)

// Clock supplies the current time to the service layer.
type Clock interface {
	Now() time.Time
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Logger is the structured logging contract used by the service. The
// signature is slog-shaped so *slog.Logger satisfies it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan finalizes a single traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

// Option customizes service construction.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithSchedule overrides the supply schedule. Ceilings and prices are fixed
// for the lifetime of the service.
func WithSchedule(schedule SupplySchedule) Option {
	return func(s *Service) {
		s.schedule = schedule
	}
}

// WithEntropySource installs the entropy collaborator.
func WithEntropySource(src EntropySource) Option {
	return func(s *Service) {
		if src != nil {
			s.entropy = src
		}
	}
}

// WithDiscountService installs the discount collaborator.
func WithDiscountService(d DiscountService) Option {
	return func(s *Service) {
		if d != nil {
			s.discount = d
		}
	}
}

// WithAccessPolicy installs the authorization/pause collaborator.
func WithAccessPolicy(p AccessPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.access = p
		}
	}
}

// WithReceiptArchive installs a receipt archive; finalized fusions and
// entropy fulfillments are archived there best-effort after commit.
func WithReceiptArchive(archive ReceiptArchive) Option {
	return func(s *Service) {
		if archive != nil {
			s.archive = archive
		}
	}
}

// WithRules replaces the default rules engine used when the service builds
// its own in-memory store.
func WithRules(engine *domain.RulesEngine) Option {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}
