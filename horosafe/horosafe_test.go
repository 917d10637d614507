package horosafe

import (
	"errors"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base    string
		parts   []string
		want    string
		wantErr bool
	}{
		{"/data/shots", []string{"run1", "Login", "form.png"}, "/data/shots/run1/Login/form.png", false},
		{"/data/shots", []string{"../etc/passwd"}, "", true},
		{"/data/shots", []string{"run1", "a/../../b"}, "", true},
		{"/data/shots/", []string{"x"}, "/data/shots/x", false},
		{"/data/shots", nil, "/data/shots", false},
	}
	for _, tt := range tests {
		got, err := SafePath(tt.base, tt.parts...)
		if tt.wantErr {
			if !errors.Is(err, ErrPathTraversal) {
				t.Errorf("SafePath(%q, %q): err = %v, want traversal", tt.base, tt.parts, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("SafePath(%q, %q) = %q, %v; want %q", tt.base, tt.parts, got, err, tt.want)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	good := []string{"LoginTest", "run_2026-01-01T00", "a.b"}
	bad := []string{"", "has space", "slash/", strings.Repeat("a", 257)}
	for _, s := range good {
		if err := ValidateIdentifier(s); err != nil {
			t.Errorf("ValidateIdentifier(%q): %v", s, err)
		}
	}
	for _, s := range bad {
		if err := ValidateIdentifier(s); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected error", s)
		}
	}
}

func TestIdentifier(t *testing.T) {
	tests := map[string]string{
		"":               "_",
		"#main > .card":  "_main___.card",
		"already-safe_1": "already-safe_1",
	}
	for in, want := range tests {
		got := Identifier(in)
		if got != want {
			t.Errorf("Identifier(%q) = %q, want %q", in, got, want)
		}
		if err := ValidateIdentifier(got); err != nil {
			t.Errorf("Identifier(%q) not valid: %v", in, err)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("12345"), 5)
	if err != nil || string(data) != "12345" {
		t.Fatalf("at limit: %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("123456"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("over limit: err = %v", err)
	}
}
