package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestIdentifyRequest_PhoneNumberFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantPhone *string
		wantErr   bool
	}{
		{name: "string", body: `{"phoneNumber":"123456"}`, wantPhone: strPtr("123456")},
		{name: "number", body: `{"phoneNumber":123456}`, wantPhone: strPtr("123456")},
		{name: "null", body: `{"phoneNumber":null}`, wantPhone: nil},
		{name: "missing", body: `{"email":"a@b.c"}`, wantPhone: nil},
		{name: "empty string", body: `{"phoneNumber":""}`, wantPhone: nil},
		{name: "boolean", body: `{"phoneNumber":true}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var req IdentifyRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			_, phone := req.Normalized()
			assert.Equal(t, tt.wantPhone, phone)
		})
	}
}

func TestIdentifyRequest_NormalizedDropsEmptyEmail(t *testing.T) {
	t.Parallel()

	req := IdentifyRequest{Email: strPtr("")}
	email, phone := req.Normalized()

	assert.Nil(t, email)
	assert.Nil(t, phone)
}

func TestContact_HasPair(t *testing.T) {
	t.Parallel()

	c := Contact{Email: strPtr("doc@hillvalley.edu"), PhoneNumber: nil}

	assert.True(t, c.HasPair(strPtr("doc@hillvalley.edu"), nil))
	assert.False(t, c.HasPair(strPtr("doc@hillvalley.edu"), strPtr("123")))
	assert.False(t, c.HasPair(nil, nil))
	assert.False(t, c.HasPair(strPtr("marty@hillvalley.edu"), nil))
}

func TestContact_OlderThan(t *testing.T) {
	t.Parallel()

	now := time.Now()
	a := Contact{ID: 2, CreatedAt: now}
	b := Contact{ID: 1, CreatedAt: now.Add(time.Second)}
	c := Contact{ID: 3, CreatedAt: now}

	assert.True(t, a.OlderThan(b))
	assert.False(t, b.OlderThan(a))
	assert.True(t, a.OlderThan(c), "equal timestamps fall back to id")
	assert.False(t, c.OlderThan(a))
}

func TestContactResponse_WireNames(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(IdentifyResponse{Contact: ContactResponse{
		PrimaryContactID:    1,
		Emails:              []string{"a@b.c"},
		PhoneNumbers:        []string{"123"},
		SecondaryContactIDs: []int64{2},
	}})
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"contact":{"primaryContatctId":1,"emails":["a@b.c"],"phoneNumbers":["123"],"secondaryContactIds":[2]}}`,
		string(body))
}
