package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	for _, email := range []string{"a@example.com", "first.last+tag@sub.example.co"} {
		assert.NoError(t, ValidateEmail(email), email)
	}
	for _, email := range []string{"", "plain", "a@b", "a@example.com\r\nBcc: x@y.com"} {
		assert.Error(t, ValidateEmail(email), email)
	}
}

func TestSanitizeHeader(t *testing.T) {
	assert.Equal(t, "Signature requested  Bcc: x@y.com", SanitizeHeader("Signature requested\r\nBcc: x@y.com"))
	assert.Equal(t, "plain", SanitizeHeader(" plain\t"))
}
