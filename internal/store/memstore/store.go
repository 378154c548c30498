// Package memstore is an in-memory store.ContactStore. Transactions hold an
// exclusive lock and roll back to a snapshot on error.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"contactlink/internal/models"
	"contactlink/internal/store"
)

// Store keeps contacts in memory.
type Store struct {
	mu       sync.Mutex
	contacts []models.Contact
	nextID   int64
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{nextID: 1, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.ContactStore = (*Store)(nil)

type txKey struct{ s *Store }

func (s *Store) inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{s}).(bool)
	return ok
}

// lock acquires the store mutex unless ctx belongs to a running transaction,
// which already holds it.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Find returns non-deleted contacts matching f, oldest first.
func (s *Store) Find(ctx context.Context, f store.Filter) ([]models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock(ctx)()

	result := []models.Contact{}
	if f.Empty() {
		return result, nil
	}
	for _, c := range s.contacts {
		if c.DeletedAt == nil && f.Matches(c) {
			result = append(result, clone(c))
		}
	}
	slices.SortStableFunc(result, compareAge)
	return result, nil
}

// Create inserts a new contact and returns it as stored.
func (s *Store) Create(ctx context.Context, nc store.NewContact) (models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return models.Contact{}, err
	}
	defer s.lock(ctx)()

	if nc.LinkedID != nil && s.indexOf(*nc.LinkedID) < 0 {
		return models.Contact{}, fmt.Errorf("create contact: linked contact %d: %w", *nc.LinkedID, models.ErrNotFound)
	}

	now := s.now().UTC()
	c := models.Contact{
		ID:             s.nextID,
		Email:          copyString(nc.Email),
		PhoneNumber:    copyString(nc.PhoneNumber),
		LinkedID:       copyInt(nc.LinkedID),
		LinkPrecedence: nc.LinkPrecedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.nextID++
	s.contacts = append(s.contacts, c)
	return clone(c), nil
}

// UpdateMany applies p to all non-deleted contacts matching f.
func (s *Store) UpdateMany(ctx context.Context, f store.Filter, p store.Patch) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer s.lock(ctx)()

	if f.Empty() || (p.LinkedID == nil && p.LinkPrecedence == nil) {
		return 0, nil
	}

	var n int64
	now := s.now().UTC()
	for i := range s.contacts {
		if s.contacts[i].DeletedAt == nil && f.Matches(s.contacts[i]) {
			apply(&s.contacts[i], p, now)
			n++
		}
	}
	return n, nil
}

// Update applies p to a single non-deleted contact.
func (s *Store) Update(ctx context.Context, id int64, p store.Patch) (models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return models.Contact{}, err
	}
	defer s.lock(ctx)()

	i := s.indexOf(id)
	if i < 0 || s.contacts[i].DeletedAt != nil {
		return models.Contact{}, fmt.Errorf("update contact %d: %w", id, models.ErrNotFound)
	}
	if p.LinkedID != nil || p.LinkPrecedence != nil {
		apply(&s.contacts[i], p, s.now().UTC())
	}
	return clone(s.contacts[i]), nil
}

// Transaction runs fn while holding the store exclusively. If fn fails or
// panics, every change it made is discarded.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]models.Contact, len(s.contacts))
	for i, c := range s.contacts {
		snapshot[i] = clone(c)
	}
	nextID := s.nextID

	defer func() {
		if r := recover(); r != nil {
			s.contacts, s.nextID = snapshot, nextID
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.contacts, s.nextID = snapshot, nextID
		return err
	}
	return nil
}

// Insert stores c verbatim, keeping its id and timestamps. It exists to
// seed fixtures, including states the core would never produce itself.
func (s *Store) Insert(c models.Contact) models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		c.ID = s.nextID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.ID >= s.nextID {
		s.nextID = c.ID + 1
	}
	c = clone(c)
	s.contacts = append(s.contacts, c)
	return clone(c)
}

// SoftDelete marks a contact deleted.
func (s *Store) SoftDelete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("soft delete contact %d: %w", id, models.ErrNotFound)
	}
	now := s.now().UTC()
	s.contacts[i].DeletedAt = &now
	return nil
}

// All returns every contact, deleted ones included, in id order.
func (s *Store) All() []models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.Contact, len(s.contacts))
	for i, c := range s.contacts {
		all[i] = clone(c)
	}
	slices.SortFunc(all, func(a, b models.Contact) int { return int(a.ID - b.ID) })
	return all
}

func (s *Store) indexOf(id int64) int {
	return slices.IndexFunc(s.contacts, func(c models.Contact) bool { return c.ID == id })
}

func apply(c *models.Contact, p store.Patch, now time.Time) {
	if p.LinkedID != nil {
		c.LinkedID = copyInt(p.LinkedID)
	}
	if p.LinkPrecedence != nil {
		c.LinkPrecedence = *p.LinkPrecedence
	}
	c.UpdatedAt = now
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

func clone(c models.Contact) models.Contact {
	c.Email = copyString(c.Email)
	c.PhoneNumber = copyString(c.PhoneNumber)
	c.LinkedID = copyInt(c.LinkedID)
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		c.DeletedAt = &t
	}
	return c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyInt(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
