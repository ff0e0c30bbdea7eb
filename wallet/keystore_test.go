package wallet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	ks, err := Generate(DefaultKeyBits)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	recipient := "recipient-pub-key-hex"
	sig, err := Sign(ks, ks.PublicKeyHex(), recipient, 12.5)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := VerifySignature(ks.PublicKeyHex(), recipient, 12.5, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyRejectsTamperedAmount(t *testing.T) {
	ks, err := Generate(DefaultKeyBits)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	recipient := "bob"
	sig, err := Sign(ks, ks.PublicKeyHex(), recipient, 5)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := VerifySignature(ks.PublicKeyHex(), recipient, 500, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected tampered amount to fail verification")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ks, err := Generate(DefaultKeyBits)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.txt")
	if err := Save(path, ks); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PublicKeyHex() != ks.PublicKeyHex() {
		t.Fatal("loaded public key does not match saved public key")
	}
	if loaded.PrivateKeyHex() != ks.PrivateKeyHex() {
		t.Fatal("loaded private key does not match saved private key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected an error loading a missing wallet file")
	}
}

func TestLoadShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.txt")
	if err := os.WriteFile(path, []byte("only-one-line\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error loading a short wallet file")
	}
}
