package core

import (
	"bytes"
	"io"
	"testing"
)

func TestCleanInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"plain ascii", []byte("a,b\n"), "a,b\n"},
		{"utf-8 bom dropped", []byte("\xEF\xBB\xBFstudent_id"), "student_id"},
		{"invalid byte replaced", []byte("he\xfflo"), "he\uFFFDlo"},
		{"multibyte kept", []byte("Zoë"), "Zoë"},
		{"utf-16le with bom", []byte{0xFF, 0xFE, 'i', 0, 'd', 0}, "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(cleanInput(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
