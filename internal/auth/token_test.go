package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := "test-secret"

	token, err := IssueToken(secret, "user-123", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	userID, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("expected user-123, got %s", userID)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := IssueToken("secret-a", "user-123", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	_, err = ParseToken("secret-b", token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	secret := "test-secret"
	token, err := IssueToken(secret, "user-123", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	_, err = ParseToken(secret, token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	cases := []string{"", "not-a-token", "a.b.c", "a.b"}
	for _, tc := range cases {
		if _, err := ParseToken("secret", tc); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseToken(%q): expected ErrInvalidToken, got %v", tc, err)
		}
	}
}
