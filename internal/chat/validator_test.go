package chat

import (
	"strings"
	"testing"
)

func TestValidateContent_Valid(t *testing.T) {
	for _, content := range []string{"hi", "a question about angular?", strings.Repeat("x", 2000)} {
		if err := ValidateContent(content); err != nil {
			t.Errorf("ValidateContent(%d chars) unexpected error: %v", len(content), err)
		}
	}
}

func TestValidateContent_Empty(t *testing.T) {
	if err := ValidateContent(""); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestValidateContent_TooLong(t *testing.T) {
	if err := ValidateContent(strings.Repeat("x", 5000)); err == nil {
		t.Error("expected error for oversized content")
	}
}

func TestValidateContent_InvalidUTF8(t *testing.T) {
	if err := ValidateContent(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("expected error for invalid utf-8")
	}
}
