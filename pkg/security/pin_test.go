package security_test

import (
	"testing"

	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/security"
)

var testPINConfig = config.PINConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyPIN(t *testing.T) {
	hash, err := security.HashPIN("4821", testPINConfig)
	if err != nil {
		t.Fatalf("HashPIN returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashPIN returned empty string")
	}

	ok, err := security.VerifyPIN("4821", hash)
	if err != nil {
		t.Fatalf("VerifyPIN returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPIN failed for the correct PIN")
	}

	ok, err = security.VerifyPIN("4822", hash)
	if err != nil {
		t.Fatalf("VerifyPIN returned error for wrong PIN: %v", err)
	}
	if ok {
		t.Fatal("VerifyPIN returned true for incorrect PIN")
	}
}

func TestHashPINUsesFreshSalt(t *testing.T) {
	first, err := security.HashPIN("123456", testPINConfig)
	if err != nil {
		t.Fatalf("HashPIN: %v", err)
	}
	second, err := security.HashPIN("123456", testPINConfig)
	if err != nil {
		t.Fatalf("HashPIN: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct salts for repeated hashes")
	}
}

func TestValidatePINFormat(t *testing.T) {
	for _, pin := range []string{"", "123", "1234567", "12a4", "12 34"} {
		if err := security.ValidatePINFormat(pin); err == nil {
			t.Fatalf("expected %q to be rejected", pin)
		}
	}
	for _, pin := range []string{"0000", "12345", "987654"} {
		if err := security.ValidatePINFormat(pin); err != nil {
			t.Fatalf("expected %q to be accepted: %v", pin, err)
		}
	}
}

func TestVerifyPINBadHash(t *testing.T) {
	for _, encoded := range []string{"not-a-hash", "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=19$t=1$c2FsdA$aGFzaA"} {
		if _, err := security.VerifyPIN("1234", encoded); err == nil {
			t.Fatalf("expected error for malformed hash %q", encoded)
		}
	}
}
