package provision

import (
	"strings"
	"testing"
)

func TestDeriveSubject(t *testing.T) {
	s, err := DeriveSubject("jane.doe@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.FirstName != "jane" || s.LastName != "doe" {
		t.Fatalf("unexpected name split: %q %q", s.FirstName, s.LastName)
	}
	if s.Username != "doej" {
		t.Fatalf("username = %q, want %q", s.Username, "doej")
	}
	if s.Email != "jane.doe@example.com" {
		t.Fatalf("email not preserved: %q", s.Email)
	}
	if len(s.Password) != 16 {
		t.Fatalf("password length = %d, want 16", len(s.Password))
	}
	for _, c := range s.Password {
		if !strings.ContainsRune(passwordAlphabet, c) {
			t.Fatalf("password contains %q outside the [a-z0-9] alphabet", c)
		}
	}
}

func TestDeriveSubjectUppercase(t *testing.T) {
	s, err := DeriveSubject("Jane.Doe@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Username != "doej" {
		t.Fatalf("username = %q, want lowercased %q", s.Username, "doej")
	}
}

func TestDeriveSubjectFreshPasswordPerRun(t *testing.T) {
	a, _ := DeriveSubject("jane.doe@example.com")
	b, _ := DeriveSubject("jane.doe@example.com")
	if a.Password == b.Password {
		t.Fatalf("expected a fresh password per derivation")
	}
}

func TestDeriveSubjectMalformed(t *testing.T) {
	for _, email := range []string{
		"janedoe@example.com", // no dot before the @
		"jane.doe",            // no @
		".doe@example.com",    // empty first name
		"jane.@example.com",   // empty last name
		"",
	} {
		if _, err := DeriveSubject(email); err != ErrMalformedEmail {
			t.Fatalf("DeriveSubject(%q) err = %v, want ErrMalformedEmail", email, err)
		}
	}
}
