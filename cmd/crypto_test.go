package cmd

import (
	"encoding/hex"
	"path/filepath"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	keys, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	message := []byte("17|11|16|3|7|11|4|2|5|9|aabb|ccdd")
	signature, err := keys.Sign(message)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if len(signature) != SignatureSize {
		t.Errorf("Expected %d-byte signature, got %d", SignatureSize, len(signature))
	}

	sigHex := hex.EncodeToString(signature)
	if !VerifySignature(keys.PublicKeyHex(), message, sigHex) {
		t.Error("Valid signature was rejected")
	}
	if VerifySignature(keys.PublicKeyHex(), []byte("another message"), sigHex) {
		t.Error("Signature over a different message was accepted")
	}

	// Tamper with the signature.
	tampered := []byte(sigHex)
	if tampered[0] == '0' {
		tampered[0] = '1'
	} else {
		tampered[0] = '0'
	}
	if VerifySignature(keys.PublicKeyHex(), message, string(tampered)) {
		t.Error("Tampered signature was accepted")
	}
}

func TestVerifySignatureMalformedInputs(t *testing.T) {
	if VerifySignature("zz", []byte("m"), "aa") {
		t.Error("Non-hex public key should be rejected")
	}
	if VerifySignature("aabb", []byte("m"), "aa") {
		t.Error("Truncated public key should be rejected")
	}
}

func TestKeyPairSaveLoad(t *testing.T) {
	keys, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "identity.json")
	if err := SaveKeyPair(keys, path); err != nil {
		t.Fatalf("SaveKeyPair failed: %v", err)
	}

	loaded, err := LoadKeyPair(path)
	if err != nil {
		t.Fatalf("LoadKeyPair failed: %v", err)
	}
	if loaded.PublicKeyHex() != keys.PublicKeyHex() {
		t.Error("Public key changed across save/load")
	}

	// A signature from the loaded key verifies against the original public
	// key.
	message := []byte("persistence check")
	signature, err := loaded.Sign(message)
	if err != nil {
		t.Fatalf("Sign with loaded key failed: %v", err)
	}
	if !VerifySignature(keys.PublicKeyHex(), message, hex.EncodeToString(signature)) {
		t.Error("Signature from reloaded key was rejected")
	}
}

func TestLoadKeyPairMissingFile(t *testing.T) {
	if _, err := LoadKeyPair(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Expected an error for a missing key file")
	}
}
