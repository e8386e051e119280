package payload

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeKeyPair generates an RSA key pair and writes both halves as PEM files.
func writeKeyPair(t *testing.T) (privatePath, publicPath string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()

	privatePath = filepath.Join(dir, "signing.pem")
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(privatePath, privatePEM, 0o600))

	publicBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	publicPath = filepath.Join(dir, "verify.pem")
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicBytes})
	require.NoError(t, os.WriteFile(publicPath, publicPEM, 0o644))

	return privatePath, publicPath
}

// TestSignAndVerify round-trips a signature through the PEM-loaded keys.
func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	privatePath, publicPath := writeKeyPair(t)

	signingKey, err := LoadSigningKey(privatePath)
	require.NoError(t, err)

	verifyKey, err := LoadVerifyKey(publicPath)
	require.NoError(t, err)

	data := []byte("version: 3.1.0\nfiles:\n  velide-middleware: abc\n")

	signature, err := Sign(data, signingKey)
	require.NoError(t, err)
	require.NoError(t, VerifySignature(data, signature, verifyKey))
}

// TestVerifySignature_DetectsTampering fails on modified data and on a
// signature from a different key.
func TestVerifySignature_DetectsTampering(t *testing.T) {
	t.Parallel()

	privatePath, publicPath := writeKeyPair(t)
	otherPrivatePath, _ := writeKeyPair(t)

	signingKey, err := LoadSigningKey(privatePath)
	require.NoError(t, err)

	otherKey, err := LoadSigningKey(otherPrivatePath)
	require.NoError(t, err)

	verifyKey, err := LoadVerifyKey(publicPath)
	require.NoError(t, err)

	data := []byte("version: 3.1.0\n")

	signature, err := Sign(data, signingKey)
	require.NoError(t, err)
	require.Error(t, VerifySignature([]byte("version: 9.9.9\n"), signature, verifyKey))

	foreignSignature, err := Sign(data, otherKey)
	require.NoError(t, err)
	require.Error(t, VerifySignature(data, foreignSignature, verifyKey))

	require.Error(t, VerifySignature(data, "not base64 !!", verifyKey))
}

// TestLoadKeys_RejectsGarbage refuses files that are not PEM keys.
func TestLoadKeys_RejectsGarbage(t *testing.T) {
	t.Parallel()

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("hello"), 0o600))

	_, err := LoadSigningKey(garbage)
	require.ErrorIs(t, err, errNoPEMBlock)

	_, err = LoadVerifyKey(garbage)
	require.ErrorIs(t, err, errNoPEMBlock)
}
