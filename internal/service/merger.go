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

// Reconciliation is the outcome of merging a resolved contact set.
type Reconciliation struct {
	// Primary is the surviving primary of the unified link-group.
	Primary models.Contact
	// Contacts is the final membership, oldest first.
	Contacts []models.Contact
	// Demoted lists the ids of primaries turned into secondaries.
	Demoted []int64
	// Created is the secondary added for a new email/phone pair, if any.
	Created *models.Contact
}

// Merger unifies resolved link-groups under their oldest primary.
type Merger struct {
	contacts store.ContactStore
	tracer   trace.Tracer
}

// NewMerger creates a merger writing to contacts.
func NewMerger(contacts store.ContactStore) *Merger {
	return &Merger{contacts: contacts, tracer: otel.Tracer(tracerName)}
}

// Reconcile elects the oldest primary among contacts, demotes every other
// primary together with its secondaries, and records the email/phone pair
// as a new secondary unless a member already holds it. All writes happen in
// one store transaction.
//
// contacts must be a non-empty Resolver result. A set without any primary
// yields models.ErrInconsistentState.
func (m *Merger) Reconcile(ctx context.Context, contacts []models.Contact, email, phoneNumber *string) (*Reconciliation, error) {
	ctx, span := m.tracer.Start(ctx, "Merger.Reconcile")
	defer span.End()

	primary, losers, err := electPrimary(contacts)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("primary_id", primary.ID),
		attribute.Int("losing_primaries", len(losers)),
	)

	result := &Reconciliation{Demoted: []int64{}}

	err = m.contacts.Transaction(ctx, func(ctx context.Context) error {
		for _, loser := range losers {
			// Re-point dependents first so no secondary is left behind a demoted primary.
			if _, err := m.contacts.UpdateMany(ctx, store.ByLinkedID(loser.ID), store.LinkTo(primary.ID)); err != nil {
				return fmt.Errorf("re-point secondaries of %d: %w", loser.ID, err)
			}
			if _, err := m.contacts.Update(ctx, loser.ID, store.DemoteTo(primary.ID)); err != nil {
				return fmt.Errorf("demote primary %d: %w", loser.ID, err)
			}
			result.Demoted = append(result.Demoted, loser.ID)
		}

		if needsSecondary(contacts, email, phoneNumber) {
			created, err := m.contacts.Create(ctx, store.NewContact{
				Email:          email,
				PhoneNumber:    phoneNumber,
				LinkedID:       &primary.ID,
				LinkPrecedence: models.LinkPrecedenceSecondary,
			})
			if err != nil {
				return fmt.Errorf("create secondary: %w", err)
			}
			result.Created = &created
		}

		final, err := m.contacts.Find(ctx, store.ByGroup(primary.ID))
		if err != nil {
			return fmt.Errorf("reload link-group %d: %w", primary.ID, err)
		}
		result.Contacts = final
		return nil
	})
	if err != nil {
		return nil, err
	}

	i := slices.IndexFunc(result.Contacts, func(c models.Contact) bool { return c.ID == primary.ID })
	if i < 0 {
		return nil, fmt.Errorf("primary %d vanished during reconciliation: %w", primary.ID, models.ErrInconsistentState)
	}
	result.Primary = result.Contacts[i]

	span.SetAttributes(
		attribute.Bool("created_secondary", result.Created != nil),
		attribute.Int("contacts", len(result.Contacts)),
	)
	return result, nil
}

// electPrimary picks the oldest primary. The others are returned as losers,
// oldest first.
func electPrimary(contacts []models.Contact) (models.Contact, []models.Contact, error) {
	var primaries []models.Contact
	for _, c := range contacts {
		if c.IsPrimary() {
			primaries = append(primaries, c)
		}
	}
	if len(primaries) == 0 {
		return models.Contact{}, nil, fmt.Errorf("no primary among %d related contacts: %w", len(contacts), models.ErrInconsistentState)
	}

	slices.SortStableFunc(primaries, compareAge)
	return primaries[0], primaries[1:], nil
}

// needsSecondary reports whether the pair is new to the group. An absent
// value only matches an absent value.
func needsSecondary(contacts []models.Contact, email, phoneNumber *string) bool {
	if email == nil && phoneNumber == nil {
		return false
	}
	return !slices.ContainsFunc(contacts, func(c models.Contact) bool {
		return c.HasPair(email, phoneNumber)
	})
}

func compareAge(a, b models.Contact) int {
	switch {
	case a.OlderThan(b):
		return -1
	case b.OlderThan(a):
		return 1
	default:
		return 0
	}
}
