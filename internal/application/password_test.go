package application

import (
	"errors"
	"strings"
	"testing"
)

var testHasher = Argon2idHasher{Params: Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}}

func TestArgon2idHasher_RoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := testHasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected hash format %q", hash)
	}
	if err := testHasher.Verify(hash, "correct horse"); err != nil {
		t.Fatalf("expected password to verify, got %v", err)
	}
	if err := testHasher.Verify(hash, "wrong horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	again, err := testHasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if again == hash {
		t.Fatalf("expected a fresh salt per hash")
	}
}

func TestVerifyPassword_RejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	for _, hash := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=x$m=1,t=1,p=1$c2FsdA$aGFzaA"} {
		if err := VerifyPassword(hash, "pw"); !errors.Is(err, ErrInvalidPasswordHash) {
			t.Errorf("VerifyPassword(%q) = %v, want ErrInvalidPasswordHash", hash, err)
		}
	}
	if err := VerifyPassword("$argon2id$v=1$m=1,t=1,p=1$c2FsdA$aGFzaA", "pw"); !errors.Is(err, ErrIncompatiblePasswordVersion) {
		t.Errorf("expected ErrIncompatiblePasswordVersion, got %v", err)
	}
}
