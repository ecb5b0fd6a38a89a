package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "ca***@example.com", RedactEmail("carolina@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "+57********67", RedactPhone("+573001234567"))
	assert.Equal(t, "***", RedactPhone("12345"))
	assert.Equal(t, "***", RedactPhone("3001234567")) // no country prefix
}

func TestRedactContact(t *testing.T) {
	assert.Equal(t, "ca***@example.com", RedactContact("carolina@example.com"))
	assert.Equal(t, "+57********67", RedactContact("+573001234567"))
	assert.Equal(t, "***", RedactContact("player_caro"))
}

func TestRedactValueByFieldKey(t *testing.T) {
	cases := []struct {
		key, val, want string
	}{
		{"phone", "+573001234567", "+57********67"},
		{"email", "carolina@example.com", "ca***@example.com"},
		{"identifier", "+573001234567", "+57********67"},
		{"new_contact_value", "carolina@example.com", "ca***@example.com"},
		{"alias", "player_caro", "player_caro"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, redactValue(tc.key, tc.val), tc.key)
	}
}

func TestRedactValueEmbeddedContacts(t *testing.T) {
	got := redactValue("path", "/auth/otp/request?value=+573001234567&to=carolina@example.com")
	assert.NotContains(t, got, "573001234567")
	assert.Contains(t, got, "+57********67")
	assert.Contains(t, got, "ca***@example.com")

	got = redactValue("detail", "otp issued for +573001234567")
	assert.Equal(t, "otp issued for +57********67", got)
}
