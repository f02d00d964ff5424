package agent

import (
	"crypto"
	"crypto/rand"
	"fmt"

	"go.mozilla.org/pkcs7"
)

// EnvelopeFormat selects the signature envelope by document type.
type EnvelopeFormat string

const (
	// EnvelopeRaw returns the bare PKCS#1 v1.5 signature bytes
	EnvelopeRaw EnvelopeFormat = "raw"
	// EnvelopeCMS wraps the signature in a detached CMS SignedData structure
	EnvelopeCMS EnvelopeFormat = "enveloped"
)

// envelopeSignature signs the server-supplied hash and packages the result in
// the requested format.
func envelopeSignature(format EnvelopeFormat, signer SlotSigner, hash []byte) ([]byte, error) {
	switch format {
	case EnvelopeRaw, "":
		return signer.Sign(rand.Reader, hash, crypto.SHA256)
	case EnvelopeCMS:
		certificate, err := signer.Certificate()
		if err != nil {
			return nil, fmt.Errorf("could not read signing certificate: %w", err)
		}
		signedData, err := pkcs7.NewSignedData(hash)
		if err != nil {
			return nil, fmt.Errorf("could not build signed data: %w", err)
		}
		signedData.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
		if err := signedData.AddSigner(certificate, signer, pkcs7.SignerInfoConfig{}); err != nil {
			return nil, fmt.Errorf("could not sign data: %w", err)
		}
		signedData.Detach()
		return signedData.Finish()
	}
	return nil, fmt.Errorf("unknown envelope format %q", format)
}
