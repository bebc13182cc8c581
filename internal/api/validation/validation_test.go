package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid_simple", "user@example.com", true},
		{"valid_subdomain", "user@mail.example.com", true},
		{"valid_plus", "user+tag@example.com", true},
		{"valid_dash", "user-name@example.com", true},
		{"valid_dot", "user.name@example.com", true},
		{"invalid_no_at", "userexample.com", false},
		{"invalid_no_domain", "user@", false},
		{"invalid_no_user", "@example.com", false},
		{"invalid_spaces", "user @example.com", false},
		{"invalid_no_tld", "user@example", false},
		{"too_long", "a" + string(make([]byte, 250)) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidEmail(tt.email), "Email: %s", tt.email)
		})
	}
}

func TestIsValidDomain(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		valid  bool
	}{
		{"valid_simple", "example.com", true},
		{"valid_subdomain", "mail.example.com", true},
		{"valid_dash", "my-domain.com", true},
		{"valid_numbers", "example123.com", true},
		{"invalid_no_tld", "example", false},
		{"invalid_dash_start", "-example.com", false},
		{"invalid_underscore", "exam_ple.com", false},
		{"invalid_spaces", "exam ple.com", false},
		{"too_long", string(make([]byte, 255)) + ".com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidDomain(tt.domain), "Domain: %s", tt.domain)
		})
	}
}

func TestIsValidUUID(t *testing.T) {
	tests := []struct {
		name  string
		uuid  string
		valid bool
	}{
		{"valid_uuid", "550e8400-e29b-41d4-a716-446655440000", true},
		{"valid_uppercase", "550E8400-E29B-41D4-A716-446655440000", true},
		{"invalid_short", "550e8400-e29b-41d4-a716", false},
		{"invalid_no_dashes", "550e8400e29b41d4a716446655440000", false},
		{"invalid_letters", "ggge8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidUUID(tt.uuid), "UUID: %s", tt.uuid)
		})
	}
}

func TestIsValidSchemaName(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		valid  bool
	}{
		{"valid_simple", "acme", true},
		{"valid_underscore", "acme_prod", true},
		{"valid_digits", "acme2", true},
		{"invalid_empty", "", false},
		{"invalid_leading_digit", "9acme", false},
		{"invalid_leading_underscore", "_acme", false},
		{"invalid_uppercase", "Acme", false},
		{"invalid_dash", "acme-prod", false},
		{"invalid_too_long", "a" + string(make([]byte, 64)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidSchemaName(tt.schema), "Schema: %s", tt.schema)
		})
	}
}

func TestIsValidPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"valid", "Password123", true},
		{"too_short", "Pw1", false},
		{"no_uppercase", "password123", false},
		{"no_lowercase", "PASSWORD123", false},
		{"no_number", "PasswordABC", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, msg := IsValidPassword(tt.password)
			assert.Equal(t, tt.valid, valid)
			if !tt.valid {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("hel\x00lo"))
	assert.Equal(t, "line1\nline2\ttab", SanitizeString("line1\nline2\ttab"))
	assert.Equal(t, "ab", SanitizeString("a\x1bb"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10))
	assert.Equal(t, "hel", TruncateString("hello", 3))
	assert.Equal(t, "", TruncateString("", 3))
}
