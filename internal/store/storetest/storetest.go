// Package storetest holds a conformance suite shared by every
// store.ContactStore implementation.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactlink/internal/models"
	"contactlink/internal/store"
)

// Fixture is a fresh, empty store plus a hook that soft-deletes a contact
// behind the store's back.
type Fixture struct {
	Store      store.ContactStore
	SoftDelete func(t *testing.T, id int64)
}

// Run checks the store.ContactStore contract. setup must return
// an empty store on every call.
func Run(t *testing.T, setup func(t *testing.T) Fixture) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, fx Fixture)
	}{
		{"CreateAssignsIDAndTimestamps", testCreate},
		{"CreateSecondary", testCreateSecondary},
		{"FindEmptyFilter", testFindEmptyFilter},
		{"FindByEmailOrPhone", testFindByEmailOrPhone},
		{"FindByGroup", testFindByGroup},
		{"FindOrdersOldestFirst", testFindOrder},
		{"FindSkipsDeleted", testFindSkipsDeleted},
		{"UpdateMany", testUpdateMany},
		{"UpdateManyEmptyFilter", testUpdateManyEmptyFilter},
		{"Update", testUpdate},
		{"UpdateNotFound", testUpdateNotFound},
		{"UpdateDeleted", testUpdateDeleted},
		{"TransactionCommit", testTransactionCommit},
		{"TransactionRollback", testTransactionRollback},
		{"TransactionNested", testTransactionNested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, setup(t))
		})
	}
}

func ptr[T any](v T) *T { return &v }

func create(t *testing.T, s store.ContactStore, email, phone string) models.Contact {
	t.Helper()

	nc := store.NewContact{LinkPrecedence: models.LinkPrecedencePrimary}
	if email != "" {
		nc.Email = ptr(email)
	}
	if phone != "" {
		nc.PhoneNumber = ptr(phone)
	}
	c, err := s.Create(context.Background(), nc)
	require.NoError(t, err)
	return c
}

func ids(contacts []models.Contact) []int64 {
	out := make([]int64, len(contacts))
	for i, c := range contacts {
		out[i] = c.ID
	}
	return out
}

func testCreate(t *testing.T, fx Fixture) {
	a := create(t, fx.Store, "lorraine@hillvalley.edu", "123456")
	b := create(t, fx.Store, "", "717171")

	assert.Positive(t, a.ID)
	assert.Greater(t, b.ID, a.ID)
	assert.Equal(t, models.LinkPrecedencePrimary, a.LinkPrecedence)
	require.NotNil(t, a.Email)
	assert.Equal(t, "lorraine@hillvalley.edu", *a.Email)
	require.NotNil(t, a.PhoneNumber)
	assert.Equal(t, "123456", *a.PhoneNumber)
	assert.Nil(t, a.LinkedID)
	assert.Nil(t, a.DeletedAt)
	assert.False(t, a.CreatedAt.IsZero())
	assert.False(t, a.UpdatedAt.IsZero())

	assert.Nil(t, b.Email, "absent email stays absent")
	assert.False(t, b.CreatedAt.Before(a.CreatedAt))
}

func testCreateSecondary(t *testing.T, fx Fixture) {
	primary := create(t, fx.Store, "doc@hillvalley.edu", "")

	sec, err := fx.Store.Create(context.Background(), store.NewContact{
		PhoneNumber:    ptr("88"),
		LinkedID:       ptr(primary.ID),
		LinkPrecedence: models.LinkPrecedenceSecondary,
	})
	require.NoError(t, err)

	assert.Equal(t, models.LinkPrecedenceSecondary, sec.LinkPrecedence)
	require.NotNil(t, sec.LinkedID)
	assert.Equal(t, primary.ID, *sec.LinkedID)
}

func testFindEmptyFilter(t *testing.T, fx Fixture) {
	create(t, fx.Store, "a@example.com", "1")

	got, err := fx.Store.Find(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func testFindByEmailOrPhone(t *testing.T, fx Fixture) {
	ctx := context.Background()
	a := create(t, fx.Store, "a@example.com", "1")
	b := create(t, fx.Store, "b@example.com", "2")
	c := create(t, fx.Store, "c@example.com", "1")
	create(t, fx.Store, "d@example.com", "4")

	got, err := fx.Store.Find(ctx, store.ByEmailOrPhone(ptr("a@example.com"), nil))
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, ids(got))

	got, err = fx.Store.Find(ctx, store.ByEmailOrPhone(nil, ptr("1")))
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, c.ID}, ids(got))

	got, err = fx.Store.Find(ctx, store.ByEmailOrPhone(ptr("b@example.com"), ptr("1")))
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, ids(got))

	got, err = fx.Store.Find(ctx, store.ByEmailOrPhone(ptr("nobody@example.com"), ptr("0")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testFindByGroup(t *testing.T, fx Fixture) {
	ctx := context.Background()
	p1 := create(t, fx.Store, "p1@example.com", "")
	p2 := create(t, fx.Store, "p2@example.com", "")
	other := create(t, fx.Store, "other@example.com", "")

	s1, err := fx.Store.Create(ctx, store.NewContact{
		PhoneNumber: ptr("11"), LinkedID: ptr(p1.ID), LinkPrecedence: models.LinkPrecedenceSecondary,
	})
	require.NoError(t, err)
	s2, err := fx.Store.Create(ctx, store.NewContact{
		PhoneNumber: ptr("22"), LinkedID: ptr(p2.ID), LinkPrecedence: models.LinkPrecedenceSecondary,
	})
	require.NoError(t, err)
	_, err = fx.Store.Create(ctx, store.NewContact{
		PhoneNumber: ptr("33"), LinkedID: ptr(other.ID), LinkPrecedence: models.LinkPrecedenceSecondary,
	})
	require.NoError(t, err)

	got, err := fx.Store.Find(ctx, store.ByGroup(p1.ID, p2.ID))
	require.NoError(t, err)
	assert.Equal(t, []int64{p1.ID, p2.ID, s1.ID, s2.ID}, ids(got))

	got, err = fx.Store.Find(ctx, store.ByLinkedID(p1.ID))
	require.NoError(t, err)
	assert.Equal(t, []int64{s1.ID}, ids(got))
}

func testFindOrder(t *testing.T, fx Fixture) {
	var want []int64
	for range 5 {
		want = append(want, create(t, fx.Store, "", "555").ID)
	}

	got, err := fx.Store.Find(context.Background(), store.ByEmailOrPhone(nil, ptr("555")))
	require.NoError(t, err)
	assert.Equal(t, want, ids(got))
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].OlderThan(got[i]), "contact %d should precede %d", got[i-1].ID, got[i].ID)
	}
}

func testFindSkipsDeleted(t *testing.T, fx Fixture) {
	ctx := context.Background()
	a := create(t, fx.Store, "a@example.com", "1")
	b := create(t, fx.Store, "b@example.com", "1")
	fx.SoftDelete(t, a.ID)

	got, err := fx.Store.Find(ctx, store.ByEmailOrPhone(nil, ptr("1")))
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids(got))

	got, err = fx.Store.Find(ctx, store.ByGroup(a.ID))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testUpdateMany(t *testing.T, fx Fixture) {
	ctx := context.Background()
	p1 := create(t, fx.Store, "p1@example.com", "")
	p2 := create(t, fx.Store, "p2@example.com", "")
	for _, phone := range []string{"1", "2"} {
		_, err := fx.Store.Create(ctx, store.NewContact{
			PhoneNumber: ptr(phone), LinkedID: ptr(p2.ID), LinkPrecedence: models.LinkPrecedenceSecondary,
		})
		require.NoError(t, err)
	}

	n, err := fx.Store.UpdateMany(ctx, store.ByLinkedID(p2.ID), store.LinkTo(p1.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	moved, err := fx.Store.Find(ctx, store.ByLinkedID(p1.ID))
	require.NoError(t, err)
	require.Len(t, moved, 2)
	for _, c := range moved {
		assert.Equal(t, models.LinkPrecedenceSecondary, c.LinkPrecedence)
	}

	left, err := fx.Store.Find(ctx, store.ByLinkedID(p2.ID))
	require.NoError(t, err)
	assert.Empty(t, left)

	n, err = fx.Store.UpdateMany(ctx, store.ByLinkedID(p2.ID), store.LinkTo(p1.ID))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testUpdateManyEmptyFilter(t *testing.T, fx Fixture) {
	p := create(t, fx.Store, "p@example.com", "")

	n, err := fx.Store.UpdateMany(context.Background(), store.Filter{}, store.DemoteTo(p.ID))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testUpdate(t *testing.T, fx Fixture) {
	ctx := context.Background()
	older := create(t, fx.Store, "george@hillvalley.edu", "919191")
	newer := create(t, fx.Store, "biffsucks@hillvalley.edu", "717171")

	got, err := fx.Store.Update(ctx, newer.ID, store.DemoteTo(older.ID))
	require.NoError(t, err)

	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, models.LinkPrecedenceSecondary, got.LinkPrecedence)
	require.NotNil(t, got.LinkedID)
	assert.Equal(t, older.ID, *got.LinkedID)
	assert.Equal(t, newer.Email, got.Email)
	assert.True(t, got.CreatedAt.Equal(newer.CreatedAt), "created_at is immutable")
	assert.False(t, got.UpdatedAt.Before(newer.UpdatedAt))
}

func testUpdateNotFound(t *testing.T, fx Fixture) {
	_, err := fx.Store.Update(context.Background(), 4242, store.DemoteTo(1))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testUpdateDeleted(t *testing.T, fx Fixture) {
	p := create(t, fx.Store, "p@example.com", "")
	c := create(t, fx.Store, "c@example.com", "")
	fx.SoftDelete(t, c.ID)

	_, err := fx.Store.Update(context.Background(), c.ID, store.DemoteTo(p.ID))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testTransactionCommit(t *testing.T, fx Fixture) {
	ctx := context.Background()

	var created models.Contact
	err := fx.Store.Transaction(ctx, func(ctx context.Context) error {
		var err error
		created, err = fx.Store.Create(ctx, store.NewContact{
			Email: ptr("tx@example.com"), LinkPrecedence: models.LinkPrecedencePrimary,
		})
		if err != nil {
			return err
		}

		// Writes are visible inside the transaction.
		got, err := fx.Store.Find(ctx, store.ByEmailOrPhone(ptr("tx@example.com"), nil))
		require.NoError(t, err)
		assert.Len(t, got, 1)
		return nil
	})
	require.NoError(t, err)

	got, err := fx.Store.Find(ctx, store.ByEmailOrPhone(ptr("tx@example.com"), nil))
	require.NoError(t, err)
	assert.Equal(t, []int64{created.ID}, ids(got))
}

func testTransactionRollback(t *testing.T, fx Fixture) {
	ctx := context.Background()
	p1 := create(t, fx.Store, "p1@example.com", "")
	p2 := create(t, fx.Store, "p2@example.com", "")
	boom := errors.New("boom")

	err := fx.Store.Transaction(ctx, func(ctx context.Context) error {
		if _, err := fx.Store.Update(ctx, p2.ID, store.DemoteTo(p1.ID)); err != nil {
			return err
		}
		if _, err := fx.Store.Create(ctx, store.NewContact{
			Email: ptr("lost@example.com"), LinkedID: ptr(p1.ID), LinkPrecedence: models.LinkPrecedenceSecondary,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := fx.Store.Find(ctx, store.ByEmailOrPhone(ptr("p2@example.com"), nil))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.LinkPrecedencePrimary, got[0].LinkPrecedence)
	assert.Nil(t, got[0].LinkedID)

	got, err = fx.Store.Find(ctx, store.ByEmailOrPhone(ptr("lost@example.com"), nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testTransactionNested(t *testing.T, fx Fixture) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := fx.Store.Transaction(ctx, func(ctx context.Context) error {
		inner := fx.Store.Transaction(ctx, func(ctx context.Context) error {
			_, err := fx.Store.Create(ctx, store.NewContact{
				Email: ptr("nested@example.com"), LinkPrecedence: models.LinkPrecedencePrimary,
			})
			return err
		})
		require.NoError(t, inner)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := fx.Store.Find(ctx, store.ByEmailOrPhone(ptr("nested@example.com"), nil))
	require.NoError(t, err)
	assert.Empty(t, got, "nested work is discarded with the outer transaction")
}
