// Package store defines the contact persistence contract used by the
// reconciliation core. Implementations live in sqlstore and memstore.
package store

import (
	"context"

	"contactlink/internal/models"
)

// Filter selects non-deleted contacts matching ANY of its set predicates.
// A filter with no predicates matches nothing.
type Filter struct {
	Email       *string
	PhoneNumber *string
	IDs         []int64
	LinkedIDs   []int64

	// Lock asks the store to lock matched rows until the surrounding
	// transaction ends. Stores without row locks ignore it.
	Lock bool
}

// Empty reports whether the filter has no predicates.
func (f Filter) Empty() bool {
	return f.Email == nil && f.PhoneNumber == nil && len(f.IDs) == 0 && len(f.LinkedIDs) == 0
}

// Matches reports whether c satisfies the filter, ignoring soft-deletion.
func (f Filter) Matches(c models.Contact) bool {
	if f.Email != nil && c.Email != nil && *c.Email == *f.Email {
		return true
	}
	if f.PhoneNumber != nil && c.PhoneNumber != nil && *c.PhoneNumber == *f.PhoneNumber {
		return true
	}
	for _, id := range f.IDs {
		if c.ID == id {
			return true
		}
	}
	if c.LinkedID != nil {
		for _, id := range f.LinkedIDs {
			if *c.LinkedID == id {
				return true
			}
		}
	}
	return false
}

// ByEmailOrPhone matches contacts sharing the given email or phone number.
// Absent values do not participate.
func ByEmailOrPhone(email, phoneNumber *string) Filter {
	return Filter{Email: email, PhoneNumber: phoneNumber}
}

// ByGroup matches the given primaries and every contact linked to them.
func ByGroup(primaryIDs ...int64) Filter {
	return Filter{IDs: primaryIDs, LinkedIDs: primaryIDs}
}

// ByLinkedID matches contacts linked to the given primary.
func ByLinkedID(primaryID int64) Filter {
	return Filter{LinkedIDs: []int64{primaryID}}
}

// NewContact holds the caller-supplied fields of a contact to create.
type NewContact struct {
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence models.LinkPrecedence
}

// Patch lists the fields to change; nil fields are left untouched.
type Patch struct {
	LinkedID       *int64
	LinkPrecedence *models.LinkPrecedence
}

// LinkTo re-points contacts at the given primary.
func LinkTo(primaryID int64) Patch {
	return Patch{LinkedID: &primaryID}
}

// DemoteTo turns a contact into a secondary of the given primary.
func DemoteTo(primaryID int64) Patch {
	precedence := models.LinkPrecedenceSecondary
	return Patch{LinkedID: &primaryID, LinkPrecedence: &precedence}
}

// ContactStore is the relational store collaborator of the reconciliation core.
type ContactStore interface {
	// Find returns matching contacts ordered by created_at, then id.
	Find(ctx context.Context, f Filter) ([]models.Contact, error)
	// Create inserts a contact; the store assigns id and timestamps.
	Create(ctx context.Context, c NewContact) (models.Contact, error)
	// UpdateMany applies p to every matching contact and returns the count.
	UpdateMany(ctx context.Context, f Filter, p Patch) (int64, error)
	// Update applies p to one non-deleted contact.
	// Returns models.ErrNotFound if there is none with that id.
	Update(ctx context.Context, id int64, p Patch) (models.Contact, error)
	// Transaction runs fn atomically. Calls made with the context passed to
	// fn take part in the transaction; nested calls join it.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
