package authpw

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("open-sesame")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash == "open-sesame" {
		t.Fatal("expected hash to differ from plaintext")
	}

	ok, err := h.Verify(hash, "open-sesame")
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify(hash, "wrong")
	if err != nil {
		t.Fatalf("expected no error for mismatch, got %v", err)
	}
	if ok {
		t.Fatal("expected mismatch for wrong password")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if _, err := h.Verify("not-a-bcrypt-hash", "pw"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	if got := NewHasher(0).cost; got != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", got)
	}
	if got := NewHasher(bcrypt.MaxCost + 1).cost; got != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", got)
	}
}
