package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParse_ValidHS256(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{UserID: "u1", Email: "u1@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Purpose != PurposeSession || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParse_RejectsUnexpectedAlgorithm(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	claims := Claims{
		UserID:  "u1",
		Purpose: PurposeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "u1",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	tokenStr, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := Parse(secret, tokenStr); err == nil {
		t.Fatalf("expected parse to reject non-HS256 token")
	}
}

func TestParse_RejectsExpiredAndForeignSecret(t *testing.T) {
	secret := []byte("test-secret")
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token, err := IssueAt(secret, Claims{UserID: "u1"}, time.Hour, issued)
	if err != nil {
		t.Fatalf("IssueAt: %v", err)
	}
	if _, err := ParseAt(secret, token, issued.Add(30*time.Minute)); err != nil {
		t.Fatalf("expected valid token inside ttl: %v", err)
	}
	if _, err := ParseAt(secret, token, issued.Add(2*time.Hour)); err == nil {
		t.Fatal("expected expired token to fail")
	}
	if _, err := ParseAt([]byte("other"), token, issued); err == nil {
		t.Fatal("expected foreign secret to fail")
	}
}
