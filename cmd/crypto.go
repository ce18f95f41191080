package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

const (
	PrivateKeySize = mldsa87.PrivateKeySize
	PublicKeySize  = mldsa87.PublicKeySize
	SignatureSize  = mldsa87.SignatureSize
)

// KeyPair is the session identity a peer signs proof-of-latency records
// with. ML-DSA-87 keeps the attestation post-quantum.
type KeyPair struct {
	private *mldsa87.PrivateKey
	public  *mldsa87.PublicKey
}

// GenerateKeyPair creates a fresh ML-DSA key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := mldsa87.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ML-DSA key pair: %w", err)
	}
	return &KeyPair{private: priv, public: pub}, nil
}

// Sign signs the message with the private key.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	signature := make([]byte, SignatureSize)
	if err := mldsa87.SignTo(kp.private, message, nil, false, signature); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return signature, nil
}

// PublicKeyHex is the transport form of the public key.
func (kp *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.public.Bytes())
}

// VerifySignature checks a signature against a hex-encoded public key as it
// appears on the wire.
func VerifySignature(pubKeyHex string, message []byte, signatureHex string) bool {
	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pubKeyBytes) != PublicKeySize {
		return false
	}
	signature, err := hex.DecodeString(signatureHex)
	if err != nil || len(signature) != SignatureSize {
		return false
	}

	pub := new(mldsa87.PublicKey)
	if err := pub.UnmarshalBinary(pubKeyBytes); err != nil {
		return false
	}
	return mldsa87.Verify(pub, message, nil, signature)
}

// keyFile is the on-disk form of a key pair.
type keyFile struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// SaveKeyPair writes the key pair to path, private key readable only by the
// owner.
func SaveKeyPair(kp *KeyPair, path string) error {
	data, err := json.MarshalIndent(keyFile{
		PrivateKey: hex.EncodeToString(kp.private.Bytes()),
		PublicKey:  kp.PublicKeyHex(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKeyPair reads a key pair previously written by SaveKeyPair.
func LoadKeyPair(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("malformed key file %s: %w", path, err)
	}

	privBytes, err := hex.DecodeString(kf.PrivateKey)
	if err != nil || len(privBytes) != PrivateKeySize {
		return nil, fmt.Errorf("malformed private key in %s", path)
	}
	pubBytes, err := hex.DecodeString(kf.PublicKey)
	if err != nil || len(pubBytes) != PublicKeySize {
		return nil, fmt.Errorf("malformed public key in %s", path)
	}

	priv := new(mldsa87.PrivateKey)
	if err := priv.UnmarshalBinary(privBytes); err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	pub := new(mldsa87.PublicKey)
	if err := pub.UnmarshalBinary(pubBytes); err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}

	return &KeyPair{private: priv, public: pub}, nil
}
