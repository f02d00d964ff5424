package agent

import "errors"

// ErrAborted is returned when the user cancels certificate or PIN entry.
var ErrAborted = errors.New("aborted by user")

// ErrNoCertificates is returned when the personal store is empty.
var ErrNoCertificates = errors.New("no certificates in personal store")

// Certificate is one entry of the user's personal certificate store.
type Certificate struct {
	Subject       string
	Thumbprint    string
	HasPrivateKey bool
	// Raw is the DER encoded certificate.
	Raw []byte
}

// CertStore enumerates the user's personal certificates. The production
// implementation is platform specific; tests use a fixture.
type CertStore interface {
	List() ([]Certificate, error)
}

// Prompt is the human in the loop: certificate choice and PIN entry.
type Prompt interface {
	// SelectCertificate returns the chosen index, or false when the user aborts.
	SelectCertificate(certificates []Certificate) (int, bool)
	// AskPIN collects the card PIN. It is asked once and held in memory only.
	AskPIN() (string, bool)
	// Dispose tears the prompt UI down. Idempotent.
	Dispose()
}

// selectSigningCertificate loops the selection dialog until the user picks a
// certificate with an accessible private key or aborts. A certificate without
// a reachable key cannot sign, so it is never accepted silently.
func selectSigningCertificate(store CertStore, prompt Prompt) (*Certificate, error) {
	certificates, err := store.List()
	if err != nil {
		return nil, err
	}
	if len(certificates) == 0 {
		return nil, ErrNoCertificates
	}

	for {
		index, ok := prompt.SelectCertificate(certificates)
		if !ok {
			return nil, ErrAborted
		}
		if index < 0 || index >= len(certificates) {
			continue
		}
		if !certificates[index].HasPrivateKey {
			continue
		}
		chosen := certificates[index]
		return &chosen, nil
	}
}
