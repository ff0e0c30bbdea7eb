// Package wallet owns the local node's signing identity: an RSA
// keypair, its on-disk persistence, and the sign/verify operations
// transactions are built and checked against.
package wallet

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledgerd/ledgerd/hashutil"
)

// DefaultKeyBits is the legacy RSA key size this node replicates.
// Too weak for real use; kept to match existing on-disk keys.
const DefaultKeyBits = 1024

// MiningSender is the sentinel sender identifying a coinbase reward.
// It is not a key and is never passed through VerifySignature.
const MiningSender = "MINING"

// KeyStore holds one RSA keypair: the local node's signing identity.
type KeyStore struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// Generate creates a fresh keypair of the given bit size.
func Generate(bits int) (*KeyStore, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}
	return &KeyStore{PrivateKey: priv, PublicKey: &priv.PublicKey}, nil
}

// PrivateKeyHex returns the hex-encoded PKCS#1 DER private key.
func (ks *KeyStore) PrivateKeyHex() string {
	return hex.EncodeToString(x509.MarshalPKCS1PrivateKey(ks.PrivateKey))
}

// PublicKeyHex returns the hex-encoded PKIX (SubjectPublicKeyInfo) DER
// public key. This is also the sender/recipient identity used
// throughout the ledger.
func (ks *KeyStore) PublicKeyHex() string {
	der, err := x509.MarshalPKIXPublicKey(ks.PublicKey)
	if err != nil {
		// A freshly generated *rsa.PublicKey always marshals cleanly.
		panic(err)
	}
	return hex.EncodeToString(der)
}

// FromHex reconstructs a KeyStore from its hex-encoded DER forms, in
// the order they are persisted: private key first, public key second.
func FromHex(privateHex, publicHex string) (*KeyStore, error) {
	privDER, err := hex.DecodeString(privateHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode private key: %w", err)
	}
	priv, err := x509.ParsePKCS1PrivateKey(privDER)
	if err != nil {
		return nil, fmt.Errorf("wallet: parse private key: %w", err)
	}
	pub, err := ParsePublicKeyHex(publicHex)
	if err != nil {
		return nil, err
	}
	return &KeyStore{PrivateKey: priv, PublicKey: pub}, nil
}

// ParsePublicKeyHex decodes a hex-encoded PKIX DER RSA public key, the
// form every sender/recipient/participant identity takes on the wire.
func ParsePublicKeyHex(publicHex string) (*rsa.PublicKey, error) {
	der, err := hex.DecodeString(publicHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode public key: %w", err)
	}
	anyPub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("wallet: parse public key: %w", err)
	}
	pub, ok := anyPub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("wallet: public key is not RSA")
	}
	return pub, nil
}

// Save writes the keypair as a two-line text file: private key first,
// public key second, matching spec.md §4.2.
func Save(path string, ks *KeyStore) error {
	content := ks.PrivateKeyHex() + "\n" + ks.PublicKeyHex() + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("wallet: save %s: %w", path, err)
	}
	return nil
}

// Load reads a two-line keypair file written by Save.
func Load(path string) (*KeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: load %s: %w", path, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("wallet: %s is missing a key line", path)
	}
	return FromHex(lines[0], lines[1])
}

// Sign produces the hex-encoded RSA PKCS#1 v1.5 signature over
// SHA3-512(sender || recipient || amount), using ks's private key.
//
// crypto/rsa's DigestInfo prefix table has no SHA3-512 entry, so the
// digest is signed raw under crypto.Hash(0) rather than through the
// hash-aware SignPKCS1v15 path; VerifySignature mirrors this exactly.
func Sign(ks *KeyStore, senderPubHex, recipientPubHex string, amount float64) (string, error) {
	digest := hashutil.HashTransactionFields(senderPubHex, recipientPubHex, amount)
	sig, err := rsa.SignPKCS1v15(rand.Reader, ks.PrivateKey, crypto.Hash(0), digest[:])
	if err != nil {
		return "", fmt.Errorf("wallet: sign: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// VerifySignature checks signatureHex against SHA3-512(sender ||
// recipient || amount) under senderPubHex. Coinbase transactions
// (sender == MiningSender) are the caller's responsibility to special
// case — this function has no sentinel key to verify against and will
// fail to parse one.
func VerifySignature(senderPubHex, recipientPubHex string, amount float64, signatureHex string) (bool, error) {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("wallet: decode signature: %w", err)
	}
	pub, err := ParsePublicKeyHex(senderPubHex)
	if err != nil {
		return false, err
	}
	digest := hashutil.HashTransactionFields(senderPubHex, recipientPubHex, amount)
	err = rsa.VerifyPKCS1v15(pub, crypto.Hash(0), digest[:], sig)
	return err == nil, nil
}
