package sanitizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid E.164 format", "+16502530000", "+16502530000"},
		{"with parentheses", "+1 (650) 253-0000", "+16502530000"},
		{"national format defaults to US", "(650) 253-0000", "+16502530000"},
		{"foreign number keeps its country", "+44 7911 123456", "+447911123456"},
		{"leading and trailing spaces", "  +16502530000  ", "+16502530000"},
		{"empty string", "", ""},
		{"only whitespace", "   ", ""},
		{"not a number", "call me", ""},
		{"too short", "12", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.input))
		})
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	once := NormalizePhone("(650) 253-0000")
	assert.Equal(t, once, NormalizePhone(once))
}

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"trim spaces", "  Alice Smith  ", "Alice Smith"},
		{"multiple spaces between words", "Morning    Dhikr", "Morning Dhikr"},
		{"tabs and newlines", "Evening\t\nClass", "Evening Class"},
		{"empty string", "", ""},
		{"only whitespace", "   \t\n  ", ""},
		{"preserve special characters", " Qur'an & Tafsir ", "Qur'an & Tafsir"},
		{"arabic characters", " حلقة الذكر ", "حلقة الذكر"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrimAndNormalize(tt.input))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "b@x.com", NormalizeEmail(" B@X.com "))
	assert.Empty(t, NormalizeEmail("  "))
}
