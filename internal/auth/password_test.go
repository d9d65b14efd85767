package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// Cost 4 keeps the suite fast; the logic under test does not depend on it.
func newTestPasswordService() *PasswordService {
	return NewPasswordService(bcrypt.MinCost)
}

func TestNewPasswordService_OutOfRangeCostFallsBack(t *testing.T) {
	if got := NewPasswordService(0).cost; got != DefaultCost {
		t.Errorf("cost = %d, want %d", got, DefaultCost)
	}
	if got := NewPasswordService(99).cost; got != DefaultCost {
		t.Errorf("cost = %d, want %d", got, DefaultCost)
	}
}

func TestHash_LooksLikeBcrypt(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("hunter22")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$04$") {
		t.Errorf("Hash() = %q, want $2a$04$ prefix", hash)
	}
}

func TestHash_Salted(t *testing.T) {
	ps := newTestPasswordService()
	a, _ := ps.Hash("same-password")
	b, _ := ps.Hash("same-password")
	if a == b {
		t.Error("two hashes of the same password are identical; salt missing")
	}
}

func TestHash_Length(t *testing.T) {
	ps := newTestPasswordService()
	if _, err := ps.Hash(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Errorf("Hash() rejected a %d byte password: %v", MaxPasswordBytes, err)
	}
	if _, err := ps.Hash(strings.Repeat("a", MaxPasswordBytes+1)); err == nil {
		t.Error("Hash() should reject passwords over 72 bytes")
	}
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, _ := ps.Hash("correct horse")

	if err := ps.Verify(hash, "correct horse"); err != nil {
		t.Errorf("Verify() correct password: %v", err)
	}
	if err := ps.Verify(hash, "battery staple"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() wrong password = %v, want ErrPasswordMismatch", err)
	}
	if err := ps.Verify(hash, ""); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() empty password = %v, want ErrPasswordMismatch", err)
	}
	err := ps.Verify("not-a-hash", "x")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() garbage hash = %v, want a non-mismatch error", err)
	}
}
