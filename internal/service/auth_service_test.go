package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siddharthareddy0/quiz-hosting/internal/config"
)

func testAuthService() *AuthService {
	return NewAuthService(&config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: 4,
	})
}

func TestPasswordHashRoundTrip(t *testing.T) {
	auth := testAuthService()

	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter22" {
		t.Fatal("hash must not equal the plaintext")
	}

	if err := auth.CheckPassword(hash, "hunter22"); err != nil {
		t.Fatalf("CheckPassword: %v", err)
	}
	if err := auth.CheckPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	auth := testAuthService()
	userID := uuid.New()

	token, err := auth.GenerateCandidateToken(userID, "Asha")
	if err != nil {
		t.Fatalf("GenerateCandidateToken: %v", err)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != userID || claims.TokenType != TokenTypeCandidate {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	adminToken, err := auth.GenerateAdminToken(userID, "Asha")
	if err != nil {
		t.Fatalf("GenerateAdminToken: %v", err)
	}
	adminClaims, err := auth.ValidateToken(adminToken)
	if err != nil {
		t.Fatalf("ValidateToken(admin): %v", err)
	}
	if adminClaims.TokenType != TokenTypeAdmin {
		t.Fatalf("expected admin token type, got %s", adminClaims.TokenType)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	auth := testAuthService()
	other := NewAuthService(&config.Config{JWTSecret: "different-secret", JWTExpiry: time.Hour})

	token, err := other.GenerateCandidateToken(uuid.New(), "")
	if err != nil {
		t.Fatalf("GenerateCandidateToken: %v", err)
	}
	if _, err := auth.ValidateToken(token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	auth := testAuthService()
	if _, err := auth.ValidateToken("not-a-jwt"); err == nil {
		t.Fatal("garbage token must be rejected")
	}
}
