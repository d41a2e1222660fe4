// Package service implements the registry operations on top of a transactional store:
// the person and identity lifecycle, the predicate queries and their simplified
// read/verify/match variants, gallery listing and document retrieval.
//
// Every operation runs in a single RunInTx call. Notifications and gallery cache
// invalidation happen after commit and never fail the operation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"registry/internal/registry/cache"
	"registry/internal/registry/custo"
	"registry/internal/registry/metrics"
	"registry/internal/registry/models"
	"registry/internal/registry/query"
	"registry/internal/registry/serializer"
	"registry/internal/registry/store"
	dErrors "registry/pkg/domain-errors"
	"registry/pkg/platform/sentinel"
	"registry/pkg/requestcontext"
)

// Notifier publishes lifecycle events.
type Notifier interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// UINGenerator allocates person identifiers.
type UINGenerator interface {
	Generate(ctx context.Context, transactionID string, attrs map[string]string) (string, error)
}

// GalleryCache caches the list of gallery names.
type GalleryCache interface {
	Get(ctx context.Context) ([]string, bool, error)
	Set(ctx context.Context, names []string) error
	Invalidate(ctx context.Context) error
}

// Published event subjects.
const (
	EventPersonDeleted    = "personDeleted"
	EventPersonsMerged    = "personsMerged"
	EventIdentityMoved    = "identityMoved"
	EventReferenceDefined = "referenceDefined"
)

// Service is the registry application service.
type Service struct {
	backend   store.Backend
	ser       *serializer.Serializer
	engine    *query.Engine
	validator *custo.Validator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	notifier  Notifier
	uin       UINGenerator
	galleries GalleryCache
	tracer    trace.Tracer

	// galleryGen counts gallery cache invalidations made by this process.
	galleryGen atomic.Uint64
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithUINGenerator(g UINGenerator) Option {
	return func(s *Service) {
		s.uin = g
	}
}

func WithGalleryCache(c GalleryCache) Option {
	return func(s *Service) {
		s.galleries = c
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New builds a Service for the customization reg. It fails when the customized
// JSON Schema does not compile.
func New(backend store.Backend, reg *custo.Registry, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, errors.New("store backend is required")
	}
	validator, err := custo.NewValidator(reg)
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}
	s := &Service{
		backend:   backend,
		ser:       serializer.New(reg),
		engine:    query.NewEngine(reg),
		validator: validator,
		logger:    slog.Default(),
		galleries: cache.Noop{},
		tracer:    otel.Tracer("registry/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Health pings the store.
func (s *Service) Health(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store unavailable")
	}
	return nil
}

// Counts reads the row counts exported as gauges.
func (s *Service) Counts(ctx context.Context) (store.Counts, error) {
	var counts store.Counts
	err := s.backend.RunInTx(ctx, func(st store.Store) error {
		var err error
		counts, err = st.Counts(ctx)
		return err
	})
	return counts, err
}

// begin opens a span for op and returns a completion func to defer with the
// operation's named error.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if err := *errp; err != nil {
			code := dErrors.CodeInternal
			if de, ok := dErrors.As(err); ok {
				code = de.Code
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, string(code))
			if s.metrics != nil {
				s.metrics.IncrementError(op, string(code))
			}
			if code == dErrors.CodeInternal {
				s.log(ctx).ErrorContext(ctx, "operation failed", "operation", op, "error", err)
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, start)
		}
		span.End()
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	l := s.logger
	if id := requestcontext.RequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	if tid := requestcontext.TransactionID(ctx); tid != "" {
		l = l.With("transaction_id", tid)
	}
	return l
}

// publish sends an event after commit. Failures are logged and counted only.
func (s *Service) publish(ctx context.Context, subject string, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx), subject, payload); err != nil {
		if s.metrics != nil {
			s.metrics.NotifyFailures.Inc()
		}
		s.log(ctx).WarnContext(ctx, "notification failed", "subject", subject, "error", err)
	}
}

func (s *Service) invalidateGalleries(ctx context.Context) {
	s.galleryGen.Add(1)
	if err := s.galleries.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.log(ctx).WarnContext(ctx, "gallery cache invalidation failed", "error", err)
	}
}

// translate maps store sentinels to domain errors. Domain errors pass through
// unchanged; anything else becomes an internal error carrying message.
func translate(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "conflict")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, message)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}

func (s *Service) validate(def string, v any) error {
	if msg := s.validator.Validate(def, v); msg != "" {
		return dErrors.New(dErrors.CodeValidation, msg)
	}
	return nil
}

func findPerson(ctx context.Context, st store.Store, personID string) (*models.Person, error) {
	p, err := st.FindPerson(ctx, personID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "person [%s] not found", personID)
	}
	return p, err
}

func findIdentity(ctx context.Context, st store.Store, personID, identityID string) (*models.Identity, error) {
	i, err := st.FindIdentity(ctx, personID, identityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "identity [%s] not found in person [%s]", identityID, personID)
	}
	return i, err
}

// reference returns the person's reference identity, or a not-found error when the
// person or its reference is missing.
func reference(ctx context.Context, st store.Store, personID string) (*models.Identity, error) {
	if _, err := findPerson(ctx, st, personID); err != nil {
		return nil, err
	}
	identities, err := st.ListIdentities(ctx, personID)
	if err != nil {
		return nil, err
	}
	for _, i := range identities {
		if i.IsReference {
			return i, nil
		}
	}
	return nil, dErrors.Newf(dErrors.CodeNotFound, "person [%s] has no reference identity", personID)
}

// nextPosition returns the position after the last identity of the list.
func nextPosition(identities []*models.Identity) int {
	next := 0
	for _, i := range identities {
		if i.Position >= next {
			next = i.Position + 1
		}
	}
	return next
}
