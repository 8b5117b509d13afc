package authpw

import (
	"errors"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in plaintext")
	}

	if err := VerifyPassword(hash, "s3cret"); err != nil {
		t.Errorf("VerifyPassword rejected correct password: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestVerifyPasswordNoHashSet(t *testing.T) {
	if err := VerifyPassword("", "anything"); err != nil {
		t.Errorf("accounts without a password must accept any input, got %v", err)
	}
}
