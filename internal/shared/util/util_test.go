package util

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestHashKey(t *testing.T) {
	id := "203.0.113.7"
	got := HashKey(id)
	if got != HashKey(id) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
	if HashKey("a") == HashKey("b") {
		t.Fatalf("distinct inputs should hash differently")
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "note.txt", want: "note.txt"},
		{name: "separators", in: "dir/sub\\note.txt", want: "dir_sub_note.txt"},
		{name: "control chars", in: "no\x00te\n.txt", want: "note.txt"},
		{name: "trimmed", in: "  note.pdf ", want: "note.pdf"},
		{name: "traversal", in: "../etc/passwd", wantErr: true},
		{name: "empty", in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFileName(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFileName) {
					t.Fatalf("expected ErrInvalidFileName, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFileNameKeepsExtensionWhenTruncating(t *testing.T) {
	got, err := SanitizeFileName(strings.Repeat("é", 200) + ".docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if utf8.RuneCountInString(got) != maxFileNameRunes {
		t.Fatalf("expected %d runes, got %d", maxFileNameRunes, utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, ".docx") {
		t.Fatalf("extension lost: %q", got)
	}
}
