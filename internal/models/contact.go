package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// LinkPrecedence marks a contact as the canonical record of its link-group
// or as one linked to it.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Valid reports whether p is a known precedence value.
func (p LinkPrecedence) Valid() bool {
	return p == LinkPrecedencePrimary || p == LinkPrecedenceSecondary
}

// Contact represents a customer contact in the database
type Contact struct {
	ID             int64          `json:"id"`
	PhoneNumber    *string        `json:"phoneNumber,omitempty"`
	Email          *string        `json:"email,omitempty"`
	LinkedID       *int64         `json:"linkedId,omitempty"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
}

// IsPrimary reports whether the contact heads its link-group.
func (c Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// HasPair reports whether the contact holds exactly the given email and
// phone number. An absent value only matches an absent value.
func (c Contact) HasPair(email, phoneNumber *string) bool {
	return sameValue(c.Email, email) && sameValue(c.PhoneNumber, phoneNumber)
}

// OlderThan orders contacts by creation time, falling back to id.
func (c Contact) OlderThan(other Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// IdentifyRequest represents the incoming request body
type IdentifyRequest struct {
	Email       *string      `json:"email"`
	PhoneNumber *PhoneNumber `json:"phoneNumber"`
}

// Normalized returns the request fields with empty strings treated as absent.
func (r IdentifyRequest) Normalized() (email, phoneNumber *string) {
	if r.Email != nil && *r.Email != "" {
		e := *r.Email
		email = &e
	}
	if r.PhoneNumber != nil && *r.PhoneNumber != "" {
		p := string(*r.PhoneNumber)
		phoneNumber = &p
	}
	return email, phoneNumber
}

// PhoneNumber accepts either a JSON string or a JSON number.
type PhoneNumber string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PhoneNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PhoneNumber(s)
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("phoneNumber must be a string or a number: %w", err)
	}
	*p = PhoneNumber(n.String())
	return nil
}

// ContactResponse represents the contact data in the response
type ContactResponse struct {
	PrimaryContactID    int64    `json:"primaryContatctId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse represents the response body
type IdentifyResponse struct {
	Contact ContactResponse `json:"contact"`
}
