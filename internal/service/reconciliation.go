// Package service implements identity reconciliation: resolving the contacts
// connected to an email or phone number, merging their link-groups under the
// oldest primary and projecting the result.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"contactlink/internal/metrics"
	"contactlink/internal/models"
	"contactlink/internal/store"
)

const tracerName = "contactlink/internal/service"

// ReconciliationService handles identity reconciliation logic
type ReconciliationService struct {
	log      *slog.Logger
	contacts store.ContactStore
	resolver *Resolver
	merger   *Merger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures a ReconciliationService.
type Option func(*ReconciliationService)

// WithTracerProvider records spans with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *ReconciliationService) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// NewReconciliationService creates a new reconciliation service.
// m may be nil.
func NewReconciliationService(logger *slog.Logger, contacts store.ContactStore, m *metrics.Metrics, opts ...Option) *ReconciliationService {
	s := &ReconciliationService{
		log:      logger.With("service", "reconciliation"),
		contacts: contacts,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = &Resolver{contacts: contacts, tracer: s.tracer}
	s.merger = &Merger{contacts: contacts, tracer: s.tracer}
	return s
}

// Identify links the observed email/phone pair to a known identity, creating
// or merging contacts as needed, and returns the consolidated identity.
//
// Returns models.ErrNoContactInfo without touching the store when neither
// value is present, and models.ErrInconsistentState when stored data breaks
// the one-primary-per-group rule. Store errors are returned wrapped.
func (s *ReconciliationService) Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error) {
	email, phoneNumber := req.Normalized()
	if email == nil && phoneNumber == nil {
		return nil, models.ErrNoContactInfo
	}

	ctx, span := s.tracer.Start(ctx, "ReconciliationService.Identify")
	defer span.End()

	start := time.Now()
	outcome := metrics.OutcomeMatched
	var (
		response *models.IdentifyResponse
		demoted  []int64
	)

	err := s.contacts.Transaction(ctx, func(ctx context.Context) error {
		related, err := s.resolver.Resolve(ctx, email, phoneNumber)
		if err != nil {
			return fmt.Errorf("resolve: %w", err)
		}

		var group []models.Contact
		if len(related) == 0 {
			created, err := s.contacts.Create(ctx, store.NewContact{
				Email:          email,
				PhoneNumber:    phoneNumber,
				LinkPrecedence: models.LinkPrecedencePrimary,
			})
			if err != nil {
				return fmt.Errorf("create primary: %w", err)
			}
			outcome = metrics.OutcomeCreatedPrimary
			group = []models.Contact{created}
		} else {
			rec, err := s.merger.Reconcile(ctx, related, email, phoneNumber)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			switch {
			case len(rec.Demoted) > 0:
				outcome = metrics.OutcomeMerged
			case rec.Created != nil:
				outcome = metrics.OutcomeCreatedSecondary
			}
			demoted = rec.Demoted
			group = rec.Contacts
		}

		view, err := Consolidate(group)
		if err != nil {
			return err
		}
		response = &models.IdentifyResponse{Contact: view}
		return nil
	})

	s.metrics.ObserveIdentifyLatency(time.Since(start))

	if err != nil {
		s.metrics.IncrementOutcome(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "identify failed")
		s.log.ErrorContext(ctx, "identify failed", slog.String("error", err.Error()))
		return nil, err
	}

	s.metrics.IncrementOutcome(outcome)
	s.metrics.AddDemoted(len(demoted))

	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int64("primary_id", response.Contact.PrimaryContactID),
		attribute.Int("secondaries", len(response.Contact.SecondaryContactIDs)),
	)

	if len(demoted) > 0 {
		s.log.InfoContext(ctx, "link-groups merged",
			slog.Int64("primary_id", response.Contact.PrimaryContactID),
			slog.Any("demoted_ids", demoted),
		)
	}
	s.log.DebugContext(ctx, "contact identified",
		slog.String("outcome", outcome),
		slog.Int64("primary_id", response.Contact.PrimaryContactID),
		slog.Int("secondaries", len(response.Contact.SecondaryContactIDs)),
	)

	return response, nil
}
