package identity

import (
	"errors"
	"testing"
)

func TestParseAccount_Valid(t *testing.T) {
	tests := []struct{ raw, want string }{
		{"alice", "alice"},
		{" desk-7 ", "desk-7"},
		{"a.b_c", "a.b_c"},
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
	}
	for _, tt := range tests {
		raw, want := tt.raw, tt.want
		got, err := ParseAccount(raw)
		if err != nil {
			t.Fatalf("ParseAccount(%q): unexpected error: %v", raw, err)
		}
		if string(got) != want {
			t.Errorf("ParseAccount(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestParseAccount_Invalid(t *testing.T) {
	tests := []string{
		"-leading-dash",
		"has space",
		"semi;colon",
		"0xZZ",
		"this-handle-is-far-too-long-to-be-accepted-by-the-exchange-as-an-id",
	}
	for _, raw := range tests {
		_, err := ParseAccount(raw)
		if !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("ParseAccount(%q): expected ErrInvalidAccount, got %v", raw, err)
		}
	}
}

func TestParseAccount_Empty(t *testing.T) {
	if _, err := ParseAccount("   "); !errors.Is(err, ErrEmptyAccount) {
		t.Errorf("expected ErrEmptyAccount, got %v", err)
	}
}
