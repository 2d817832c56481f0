package upload

import "testing"

func TestSanitizeObjectName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"photo.png", "photo.png"},
		{"my photo.png", "my-photo.png"},
		{"../../etc/passwd", "passwd"},
		{"..\\..\\shot.jpg", "shot.jpg"},
		{"", "upload"},
		{"???", "upload"},
	}
	for _, tt := range tests {
		if got := sanitizeObjectName(tt.input); got != tt.expected {
			t.Errorf("sanitizeObjectName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
