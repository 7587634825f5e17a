package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-server/instrumentation"
	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/storage"
)

// tokenIDLogLength is how much of a credential may appear in logs
const tokenIDLogLength = 8

// Server implements the authorization server logic (transport-agnostic).
// It holds no state between calls; all mutable state lives in the store.
type Server struct {
	store          storage.Storage
	supportedScope string

	Auditor *security.Auditor
	Logger  *slog.Logger
	Config  *Config

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	metrics         *instrumentation.Metrics

	now func() time.Time
}

// New creates a new authorization server
func New(store storage.Storage, config *Config, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config, logger)

	supported, err := config.supportedScope()
	if err != nil {
		return nil, err
	}

	srv := &Server{
		store:          store,
		supportedScope: supported,
		Config:         config,
		Logger:         logger,
		tracer:         tracenoop.NewTracerProvider().Tracer(""),
		now:            time.Now,
	}

	// Storage may purge codes on its own; keep its retention in line with redemption
	type codeTTLSetter interface {
		SetAuthorizationCodeTTL(ttl time.Duration)
	}
	if setter, ok := store.(codeTTLSetter); ok {
		setter.SetAuthorizationCodeTTL(time.Duration(config.AuthorizationCodeTTL) * time.Second)
	}

	return srv, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation sets the OpenTelemetry instrumentation for the server
// and for the store when it supports instrumentation.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst == nil {
		s.tracer = tracenoop.NewTracerProvider().Tracer("")
		s.metrics = nil
		return
	}
	s.tracer = inst.Tracer("server")
	s.metrics = inst.Metrics()

	type instrumentationSetter interface {
		SetInstrumentation(*instrumentation.Instrumentation)
	}
	if setter, ok := s.store.(instrumentationSetter); ok {
		setter.SetInstrumentation(inst)
	}
}

// SetClock replaces the time source. Tests use it to drive expiry.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// Storage returns the store the server was created with
func (s *Server) Storage() storage.Storage {
	return s.store
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

// audit logs a security event and counts it
func (s *Server) audit(ctx context.Context, event security.Event) {
	if s.Auditor == nil {
		return
	}
	s.Auditor.LogEvent(event)
	if s.metrics != nil {
		s.metrics.RecordAuditEvent(ctx, event.Type)
	}
}
