package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactlink/internal/models"
)

var epoch = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

func contact(id int64, email, phone string, linkedID int64, minutes int) models.Contact {
	c := models.Contact{
		ID:             id,
		LinkPrecedence: models.LinkPrecedencePrimary,
		CreatedAt:      epoch.Add(time.Duration(minutes) * time.Minute),
	}
	if email != "" {
		c.Email = ptr(email)
	}
	if phone != "" {
		c.PhoneNumber = ptr(phone)
	}
	if linkedID != 0 {
		c.LinkedID = ptr(linkedID)
		c.LinkPrecedence = models.LinkPrecedenceSecondary
	}
	c.UpdatedAt = c.CreatedAt
	return c
}

func TestConsolidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		contacts []models.Contact
		want     models.ContactResponse
	}{
		{
			name:     "single primary",
			contacts: []models.Contact{contact(1, "lorraine@hillvalley.edu", "123456", 0, 0)},
			want: models.ContactResponse{
				PrimaryContactID:    1,
				Emails:              []string{"lorraine@hillvalley.edu"},
				PhoneNumbers:        []string{"123456"},
				SecondaryContactIDs: []int64{},
			},
		},
		{
			name: "values in creation order, ids ascending",
			contacts: []models.Contact{
				contact(9, "c@example.com", "3", 4, 3),
				contact(4, "a@example.com", "1", 0, 0),
				contact(2, "b@example.com", "2", 4, 2),
				contact(7, "a@example.com", "", 4, 1),
			},
			want: models.ContactResponse{
				PrimaryContactID:    4,
				Emails:              []string{"a@example.com", "b@example.com", "c@example.com"},
				PhoneNumbers:        []string{"1", "2", "3"},
				SecondaryContactIDs: []int64{2, 7, 9},
			},
		},
		{
			name: "primary without email",
			contacts: []models.Contact{
				contact(1, "", "555", 0, 0),
				contact(2, "doc@hillvalley.edu", "555", 1, 1),
			},
			want: models.ContactResponse{
				PrimaryContactID:    1,
				Emails:              []string{"doc@hillvalley.edu"},
				PhoneNumbers:        []string{"555"},
				SecondaryContactIDs: []int64{2},
			},
		},
		{
			name: "no flagged primary falls back to oldest",
			contacts: []models.Contact{
				contact(5, "late@example.com", "", 1, 10),
				contact(6, "early@example.com", "", 1, 5),
			},
			want: models.ContactResponse{
				PrimaryContactID:    6,
				Emails:              []string{"early@example.com", "late@example.com"},
				PhoneNumbers:        []string{},
				SecondaryContactIDs: []int64{5},
			},
		},
		{
			name: "empty strings are skipped",
			contacts: []models.Contact{
				{ID: 1, Email: ptr(""), PhoneNumber: ptr("1"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: epoch},
			},
			want: models.ContactResponse{
				PrimaryContactID:    1,
				Emails:              []string{},
				PhoneNumbers:        []string{"1"},
				SecondaryContactIDs: []int64{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Consolidate(tt.contacts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConsolidate_Empty(t *testing.T) {
	t.Parallel()

	_, err := Consolidate(nil)
	require.ErrorIs(t, err, models.ErrInconsistentState)
}

func TestConsolidate_DoesNotReorderInput(t *testing.T) {
	t.Parallel()

	in := []models.Contact{contact(2, "b@example.com", "", 1, 1), contact(1, "a@example.com", "", 0, 0)}
	_, err := Consolidate(in)
	require.NoError(t, err)
	assert.Equal(t, int64(2), in[0].ID)
}
