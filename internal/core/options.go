package core

import (
	"time"

	"github.com/google/uuid"

	"btxclinic/pkg/domain"
)

// ServiceOption configures optional service behaviour.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock    Clock
	newID    func() string
	logger   Logger
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
	renderer Renderer
	engine   *domain.RulesEngine
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:    ClockFunc(time.Now),
		newID:    uuid.NewString,
		logger:   noopLogger{},
		audit:    noopAuditRecorder{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		renderer: noopRenderer{},
		engine:   NewDefaultRulesEngine(),
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithIDGenerator overrides the record id generator.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(o *serviceOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the recorder receiving one entry per operation.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithRenderer sets the collaborator refreshed after every committed mutation.
func WithRenderer(renderer Renderer) ServiceOption {
	return func(o *serviceOptions) {
		if renderer != nil {
			o.renderer = renderer
		}
	}
}

// WithRulesEngine replaces the default rules engine.
func WithRulesEngine(engine *domain.RulesEngine) ServiceOption {
	return func(o *serviceOptions) {
		if engine != nil {
			o.engine = engine
		}
	}
}
