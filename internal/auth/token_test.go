package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func validClaims() Claims {
	return Claims{
		Sub:  "usr_1",
		Name: "Priya",
		Role: "editor",
		JTI:  "jti_1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	}
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(secret, validClaims())
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.Sub != "usr_1" || claims.Name != "Priya" || claims.Role != "editor" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, _ := IssueToken(secret, validClaims())
	if _, err := ParseToken([]byte("other-secret"), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenTampered(t *testing.T) {
	token, _ := IssueToken(secret, validClaims())
	parts := strings.Split(token, ".")
	tampered := parts[0] + "x." + parts[1]
	if _, err := ParseToken(secret, tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	claims := validClaims()
	claims.Exp = time.Now().Add(-time.Minute).Unix()
	token, _ := IssueToken(secret, claims)
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("err = %v, want ErrExpiredToken", err)
	}
}

func TestParseTokenMalformed(t *testing.T) {
	for _, raw := range []string{"", "nodot", "a.b.c", "!!!.sig"} {
		if _, err := ParseToken(secret, raw); err == nil {
			t.Errorf("ParseToken(%q) should fail", raw)
		}
	}
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("refresh-token")
	b := HashToken("refresh-token")
	if a != b {
		t.Error("hash must be deterministic")
	}
	if a == HashToken("other") {
		t.Error("distinct tokens must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
