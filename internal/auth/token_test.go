package auth

import "testing"

func TestHashAndVerifyToken(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("shh-its-a-token")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	if !VerifyToken("shh-its-a-token", hash) {
		t.Fatalf("expected token to verify against its own hash")
	}
	if VerifyToken("wrong-token", hash) {
		t.Fatalf("did not expect wrong token to verify")
	}
}

func TestHashToken_Empty(t *testing.T) {
	t.Parallel()

	if _, err := HashToken("   "); err == nil {
		t.Fatalf("expected error for blank token")
	}
	if VerifyToken("", "") {
		t.Fatalf("did not expect empty token/hash to verify")
	}
}
