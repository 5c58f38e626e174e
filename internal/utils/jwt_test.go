package utils

import (
	"net/http"
	"testing"
	"time"

	"cargoride/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	signer := NewTokenSigner("secret", "", time.Hour)

	token, err := signer.GenerateAccessToken("d1", RoleDriver)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := signer.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "d1" || claims.Role != RoleDriver || claims.Issuer != AppName {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	token, _ := NewTokenSigner("secret", "", time.Hour).GenerateAccessToken("d1", RoleDriver)
	if _, err := NewTokenSigner("other", "", time.Hour).ValidateToken(token); err == nil {
		t.Error("token signed with another secret validated")
	}

	short := &TokenSigner{secret: []byte("secret"), issuer: AppName, ttl: -time.Minute}
	stale, _ := short.GenerateAccessToken("d1", RoleDriver)
	if _, err := short.ValidateToken(stale); err == nil {
		t.Error("expired token validated")
	}
}

func TestEngineErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewValidationError("op", "bad"), http.StatusBadRequest},
		{&models.EngineError{Op: "get", Kind: models.ErrNotFound}, http.StatusNotFound},
		{models.ErrDuplicateOffer, http.StatusConflict},
		{models.ErrAlreadyAccepted, http.StatusConflict},
		{models.ErrInvalidState, http.StatusConflict},
		{models.ErrTransactionConflict, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got, _ := EngineErrorStatus(tt.err); got != tt.want {
			t.Errorf("EngineErrorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
