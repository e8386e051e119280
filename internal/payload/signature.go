package payload

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SignatureFilename is the detached manifest signature published next to
// the manifest. The signature covers the manifest bytes; every payload
// file is covered transitively through its checksum.
const SignatureFilename = "velide-payload.sig"

var (
	errNoPEMBlock = errors.New("no PEM block found")
	errNotRSAKey  = errors.New("key is not an RSA key")
)

// LoadSigningKey reads an RSA private key from a PEM file, accepting both
// PKCS#1 ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings.
func LoadSigningKey(path string) (*rsa.PrivateKey, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(contents)
	if block == nil {
		return nil, fmt.Errorf("%s: %w", path, errNoPEMBlock)
	}

	if key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes); pkcs1Err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, errNotRSAKey)
	}

	return key, nil
}

// LoadVerifyKey reads an RSA public key from a PKIX PEM file.
func LoadVerifyKey(path string) (*rsa.PublicKey, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(contents)
	if block == nil {
		return nil, fmt.Errorf("%s: %w", path, errNoPEMBlock)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse verify key: %w", err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, errNotRSAKey)
	}

	return key, nil
}

// Sign produces a base64-encoded PKCS#1 v1.5 signature over the data,
// hashed with ChecksumFunction.
func Sign(data []byte, key *rsa.PrivateKey) (string, error) {
	digest, err := dataDigest(data)
	if err != nil {
		return "", err
	}

	signature, err := rsa.SignPKCS1v15(rand.Reader, key, ChecksumFunction, digest)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// VerifySignature checks a base64-encoded signature produced by Sign.
func VerifySignature(data []byte, encodedSignature string, key *rsa.PublicKey) error {
	signature, err := base64.StdEncoding.DecodeString(encodedSignature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	digest, err := dataDigest(data)
	if err != nil {
		return err
	}

	if err = rsa.VerifyPKCS1v15(key, ChecksumFunction, digest, signature); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}

	return nil
}

// dataDigest hashes data with ChecksumFunction.
func dataDigest(data []byte) ([]byte, error) {
	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("digest calculation not possible: %w", errHashUnavailable)
	}

	hasher := ChecksumFunction.New()
	if _, err := hasher.Write(data); err != nil {
		return nil, fmt.Errorf("calculate digest: %w", err)
	}

	return hasher.Sum(nil), nil
}
