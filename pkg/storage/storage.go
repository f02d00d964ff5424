package storage

import (
	"errors"

	"github.com/signato/signato-auth/pkg/document"
)

// ErrNotFound is returned when a record does not exist in the store.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary of the authentication subsystem. The
// document service owns the records; this store only reads them and applies
// the narrow set of mutations the authentication flows are allowed to make.
type Store interface {
	// CredentialByToken looks a credential up by its primary or secondary token.
	CredentialByToken(token string) (*document.Credential, error)
	SaveCredential(credential *document.Credential) error

	SignerByID(id string) (*document.Signer, error)
	SaveSigner(signer *document.Signer) error

	CollectionByID(id string) (*document.Collection, error)
	SaveCollection(collection *document.Collection) error

	// IncrementAttempts bumps the OTP attempt counter for a signer and returns
	// the new value. The increment is serialized per signer so concurrent
	// submissions cannot under-count.
	IncrementAttempts(signerID string) (int, error)

	// IncrementIdentificationAttempts is the visual identity counterpart of
	// IncrementAttempts.
	IncrementIdentificationAttempts(signerID string) (int, error)

	// DeclineCollection applies the lockout side effect in one step: the
	// collection becomes Declined, the signer Rejected and the note is attached.
	DeclineCollection(collectionID, signerID, noteText string) error
}
