package models

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestLastMessagePreview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short content kept whole", "hello", "hello"},
		{"exactly at the limit", strings.Repeat("a", 100), strings.Repeat("a", 100)},
		{"long content cut to 100", strings.Repeat("a", 150), strings.Repeat("a", 100)},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastMessagePreview(tt.content); got != tt.want {
				t.Errorf("LastMessagePreview = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLastMessagePreviewMultibyte(t *testing.T) {
	content := strings.Repeat("é", 150)
	got := LastMessagePreview(content)

	if !utf8.ValidString(got) {
		t.Fatal("preview cut a rune in half")
	}
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Errorf("preview has %d runes, want 100", n)
	}
}
