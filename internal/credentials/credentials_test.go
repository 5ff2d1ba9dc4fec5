package credentials

import (
	"bytes"
	"testing"
)

func TestVaultRoundTrip(t *testing.T) {
	vault, err := NewVault("test-passphrase")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	secret := []byte(`{"content":"Symbol,Quantity\nAAPL,10","nickname":"Brokerage"}`)
	blob, err := vault.Encrypt(secret)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if bytes.Contains(blob, []byte("AAPL")) {
		t.Fatal("plaintext leaked into stored blob")
	}

	got, err := vault.Decrypt(blob)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("round trip mismatch: %s", got)
	}
}

func TestVaultWrongPassphrase(t *testing.T) {
	vault, _ := NewVault("right")
	blob, err := vault.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	other, _ := NewVault("wrong")
	if _, err := other.Decrypt(blob); err == nil {
		t.Fatal("expected decryption failure with wrong passphrase")
	}
}

func TestVaultRejectsEmptyPassphrase(t *testing.T) {
	if _, err := NewVault(""); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}

func TestVaultRejectsGarbageBlob(t *testing.T) {
	vault, _ := NewVault("p")
	if _, err := vault.Decrypt([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid envelope")
	}
}
