package service

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"contactlink/internal/models"
	"contactlink/internal/store"
)

// Resolver loads every contact transitively connected to an email or phone
// number through shared values.
type Resolver struct {
	contacts store.ContactStore
	tracer   trace.Tracer
}

// NewResolver creates a resolver reading from contacts.
func NewResolver(contacts store.ContactStore) *Resolver {
	return &Resolver{contacts: contacts, tracer: otel.Tracer(tracerName)}
}

// Resolve returns the full membership of every link-group touched by the
// given email or phone number, oldest first. An empty result means the
// identity is unknown. Resolve does not write.
//
// Secondaries never point at other secondaries, so two reads suffice: the
// direct matches, then every contact of the primaries they belong to.
func (r *Resolver) Resolve(ctx context.Context, email, phoneNumber *string) ([]models.Contact, error) {
	ctx, span := r.tracer.Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(
			attribute.Bool("has_email", email != nil),
			attribute.Bool("has_phone", phoneNumber != nil),
		),
	)
	defer span.End()

	direct := store.ByEmailOrPhone(email, phoneNumber)
	direct.Lock = true

	matches, err := r.contacts.Find(ctx, direct)
	if err != nil {
		return nil, fmt.Errorf("find direct matches: %w", err)
	}
	if len(matches) == 0 {
		span.SetAttributes(attribute.Int("direct_matches", 0))
		return matches, nil
	}

	primaryIDs := primaryIDsOf(matches)
	span.SetAttributes(
		attribute.Int("direct_matches", len(matches)),
		attribute.Int("groups", len(primaryIDs)),
	)

	// Secondaries without a primary; reconciliation reports the corruption.
	if len(primaryIDs) == 0 {
		return matches, nil
	}

	group := store.ByGroup(primaryIDs...)
	group.Lock = true

	closure, err := r.contacts.Find(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("find link-groups: %w", err)
	}
	span.SetAttributes(attribute.Int("contacts", len(closure)))
	return closure, nil
}

// primaryIDsOf collects the primaries the contacts belong to, in first-seen order.
func primaryIDsOf(contacts []models.Contact) []int64 {
	var ids []int64
	for _, c := range contacts {
		id := c.ID
		if !c.IsPrimary() {
			if c.LinkedID == nil {
				continue
			}
			id = *c.LinkedID
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}
