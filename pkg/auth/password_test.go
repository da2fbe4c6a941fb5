package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordAndCheckPasswordBcrypt(t *testing.T) {
	hash, err := HashPassword("s3cretpass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || hash == "s3cretpass" {
		t.Fatalf("expected opaque hash, got %q", hash)
	}
	if !CheckPassword("s3cretpass", hash) {
		t.Fatalf("expected bcrypt password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected bcrypt password check to fail")
	}
	if CheckPassword("s3cretpass", "") {
		t.Fatalf("expected empty hash to never match")
	}
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		password string
		want     error
	}{
		{password: "reader2026", want: nil},
		{password: "ශ්‍රී lanka 1", want: nil},
		{password: "abc123", want: ErrPasswordTooShort},
		{password: "onlyletters", want: ErrPasswordTooWeak},
		{password: "1234567890", want: ErrPasswordTooWeak},
		{password: strings.Repeat("a1", 40), want: ErrPasswordTooLong},
	}
	for _, tc := range cases {
		if err := ValidatePassword(tc.password); !errors.Is(err, tc.want) {
			t.Fatalf("ValidatePassword(%q) = %v, want %v", tc.password, err, tc.want)
		}
	}
}
