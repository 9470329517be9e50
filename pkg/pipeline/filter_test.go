package pipeline

import (
	"strings"
	"testing"
)

func TestIsInvalidTranscript(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"normal sentence", "What is on the table?", false},
		{"normal japanese", "これはペンです。", false},
		{"empty", "", true},
		{"whitespace only", " \t\n ", true},
		{"long character run", "あああああああ", true},
		{"run at limit passes", "ええええええ", false},
		{"repeated ngram", strings.Repeat("hello ", 8), true},
		{"repeated japanese phrase", strings.Repeat("ありがとう", 6), true},
		{"short text passes", "ok.", false},
		{"run inside sentence", "soooooooo good", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalidTranscript(tt.text); got != tt.want {
				t.Errorf("IsInvalidTranscript(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
