package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already normalized", "+15551234567", "+15551234567"},
		{"spaces and dashes", "+1 555-123-4567", "+15551234567"},
		{"parentheses", "+1 (555) 123-4567", "+15551234567"},
		{"dots", "+1.555.123.4567", "+15551234567"},
		{"international prefix", "0015551234567", "+15551234567"},
		{"surrounding whitespace", "  +15551234567  ", "+15551234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if err != nil {
				t.Fatalf("Normalize(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"no country code", "5551234567"},
		{"letters", "+1555CALLNOW"},
		{"plus mid-string", "15+551234567"},
		{"too short", "+1234567"},
		{"too long", "+1234567890123456"},
		{"zero after plus", "+05551234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(tt.input); !errors.Is(err, ErrInvalidNumber) {
				t.Errorf("Normalize(%q) error = %v, want ErrInvalidNumber", tt.input, err)
			}
		})
	}
}
