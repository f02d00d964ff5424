package agent

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
)

func newTestKeyAndCert(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Ada Prima"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	certificate, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, certificate
}

func TestEnvelopeSignature(t *testing.T) {
	key, certificate := newTestKeyAndCert(t)
	digest := sha256.Sum256([]byte("document content"))
	signer := &fakeSigner{key: key, certificate: certificate}

	t.Run("raw yields a verifiable PKCS#1 signature", func(t *testing.T) {
		signature, err := envelopeSignature(EnvelopeRaw, signer, digest[:])
		require.NoError(t, err)
		assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], signature))
	})

	t.Run("the empty format defaults to raw", func(t *testing.T) {
		signature, err := envelopeSignature("", signer, digest[:])
		require.NoError(t, err)
		assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], signature))
	})

	t.Run("enveloped yields detached CMS signed data", func(t *testing.T) {
		signature, err := envelopeSignature(EnvelopeCMS, signer, digest[:])
		require.NoError(t, err)

		parsed, err := pkcs7.Parse(signature)
		require.NoError(t, err)
		require.Len(t, parsed.Certificates, 1)
		assert.Equal(t, "Ada Prima", parsed.Certificates[0].Subject.CommonName)
		// detached: the content travels outside the envelope
		assert.Empty(t, parsed.Content)
	})

	t.Run("an unknown format is an error", func(t *testing.T) {
		_, err := envelopeSignature("pgp", signer, digest[:])
		assert.Error(t, err)
	})
}
