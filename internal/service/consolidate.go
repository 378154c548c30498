package service

import (
	"fmt"
	"slices"

	"contactlink/internal/models"
)

// Consolidate projects a link-group into its summary view. Emails and phone
// numbers are listed in the order they first appear scanning members oldest
// first, so the primary's own values lead. Secondary ids are ascending.
func Consolidate(contacts []models.Contact) (models.ContactResponse, error) {
	if len(contacts) == 0 {
		return models.ContactResponse{}, fmt.Errorf("consolidate empty link-group: %w", models.ErrInconsistentState)
	}

	members := slices.Clone(contacts)
	slices.SortStableFunc(members, compareAge)

	primary := members[0]
	if i := slices.IndexFunc(members, models.Contact.IsPrimary); i >= 0 {
		primary = members[i]
	}

	resp := models.ContactResponse{
		PrimaryContactID:    primary.ID,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []int64{},
	}
	for _, c := range members {
		if c.Email != nil && *c.Email != "" && !slices.Contains(resp.Emails, *c.Email) {
			resp.Emails = append(resp.Emails, *c.Email)
		}
		if c.PhoneNumber != nil && *c.PhoneNumber != "" && !slices.Contains(resp.PhoneNumbers, *c.PhoneNumber) {
			resp.PhoneNumbers = append(resp.PhoneNumbers, *c.PhoneNumber)
		}
		if c.ID != primary.ID {
			resp.SecondaryContactIDs = append(resp.SecondaryContactIDs, c.ID)
		}
	}
	slices.Sort(resp.SecondaryContactIDs)

	return resp, nil
}
