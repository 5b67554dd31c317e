package accounts_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Alice@Example.COM", "alice@example.com"},
		{"trims whitespace", "  a@x.com \n", "a@x.com"},
		{"already normal", "a@x.com", "a@x.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, accounts.NormalizeEmail(tt.input))
		})
	}
}

func TestTokenPurposeIsValid(t *testing.T) {
	assert.True(t, accounts.PurposeEmailConfirm.IsValid())
	assert.True(t, accounts.PurposePasswordReset.IsValid())
	assert.False(t, accounts.TokenPurpose("").IsValid())
	assert.False(t, accounts.TokenPurpose("magic_link").IsValid())
}

func TestConfirmationTokenLifecycleChecks(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := &accounts.ConfirmationToken{
		IssuedAt:  issued,
		ExpiresAt: issued.Add(24 * time.Hour),
	}

	assert.False(t, token.Consumed())
	assert.False(t, token.ExpiredAt(issued))
	assert.False(t, token.ExpiredAt(issued.Add(23*time.Hour)))
	assert.True(t, token.ExpiredAt(issued.Add(24*time.Hour)), "expiry boundary is exclusive")
	assert.True(t, token.ExpiredAt(issued.Add(48*time.Hour)))

	consumedAt := issued.Add(time.Hour)
	token.ConsumedAt = &consumedAt
	assert.True(t, token.Consumed())
}

func TestSecretsNeverSerialize(t *testing.T) {
	user := &accounts.User{
		Email:        "a@x.com",
		Username:     "alice",
		PasswordHash: "$2a$14$secret",
	}

	out, err := json.Marshal(user)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
	assert.NotContains(t, string(out), "password_hash")

	token := &accounts.ConfirmationToken{TokenHash: "deadbeef"}
	out, err = json.Marshal(token)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "deadbeef")
}
