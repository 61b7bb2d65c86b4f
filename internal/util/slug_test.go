package util

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Basic normalization
		{"lowercase", "TIDES", "tides"},
		{"spaces to dashes", "the art of tea", "the-art-of-tea"},
		{"already normalized", "the-art-of-tea", "the-art-of-tea"},

		// Unicode
		{"accented characters", "Café Stories", "cafe-stories"},
		{"non-latin stripped", "本 Book", "book"},

		// Special characters
		{"punctuation to dashes", "sci-fi/fantasy", "sci-fi-fantasy"},
		{"collapsed runs", "a  --  b", "a-b"},

		// Dash handling
		{"leading and trailing", "--tides--", "tides"},

		// Edge cases
		{"empty string", "", ""},
		{"only special chars", "!@#$%", ""},
		{"numbers allowed", "top10", "top10"},
		{"mixed case with numbers", "Top 10 Books", "top-10-books"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Slugify(tt.input)
			if result != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
