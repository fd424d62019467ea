package domain

import (
	"errors"
	"testing"
)

func TestKind_Accessor(t *testing.T) {
	u := &User{ID: "u1", Email: "jo@example.com", Optin: 1}

	testCases := []struct {
		code string
		want any
		ok   bool
	}{
		{"id", "u1", true},
		{"email", "jo@example.com", true},
		{"optin", 1, true},
		{"optinPartner", 0, true},
		{"password", nil, false},
	}
	for _, tc := range testCases {
		t.Run(tc.code, func(t *testing.T) {
			get, found := Kind.Accessor(tc.code)
			if found != tc.ok {
				t.Fatalf("Accessor(%q) found = %v, want %v", tc.code, found, tc.ok)
			}
			if !found {
				return
			}
			got, ok := get(u)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if got != tc.want {
				t.Errorf("Attribute(%q) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestUser_Flag(t *testing.T) {
	u := &User{Optin: 1, OptinPartner: 0}
	if u.Flag("optin") != 1 || u.Flag("optinPartner") != 0 || u.Flag("other") != 0 {
		t.Errorf("Flag values wrong: %d %d %d", u.Flag("optin"), u.Flag("optinPartner"), u.Flag("other"))
	}
}

func TestUser_Validate(t *testing.T) {
	if err := (&User{}).Validate(); !errors.Is(err, ErrNoSubject) {
		t.Errorf("Validate without id = %v, want ErrNoSubject", err)
	}
	var nilUser *User
	if err := nilUser.Validate(); !errors.Is(err, ErrNoSubject) {
		t.Errorf("Validate on nil = %v, want ErrNoSubject", err)
	}
	if err := (&User{ID: "u1"}).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
