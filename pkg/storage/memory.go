package storage

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/signato/signato-auth/pkg/document"
)

// MemoryStore keeps all records in process memory. It backs single-node runs
// and the test suites; clustered deployments use the redis store.
type MemoryStore struct {
	mutex       sync.Mutex
	credentials map[string]*document.Credential
	byAuthToken map[string]string
	signers     map[string]*document.Signer
	collections map[string]*document.Collection
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: map[string]*document.Credential{},
		byAuthToken: map[string]string{},
		signers:     map[string]*document.Signer{},
		collections: map[string]*document.Collection{},
	}
}

func (s *MemoryStore) CredentialByToken(token string) (*document.Credential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if credential, ok := s.credentials[token]; ok {
		return copyCredential(credential), nil
	}
	if primary, ok := s.byAuthToken[token]; ok {
		return copyCredential(s.credentials[primary]), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SaveCredential(credential *document.Credential) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.credentials[credential.Token] = copyCredential(credential)
	if credential.AuthToken != "" {
		s.byAuthToken[credential.AuthToken] = credential.Token
	}
	return nil
}

func (s *MemoryStore) SignerByID(id string) (*document.Signer, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	signer, ok := s.signers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySigner(signer), nil
}

func (s *MemoryStore) SaveSigner(signer *document.Signer) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.signers[signer.ID] = copySigner(signer)
	return nil
}

func (s *MemoryStore) CollectionByID(id string) (*document.Collection, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	collection, ok := s.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCollection(collection), nil
}

func (s *MemoryStore) SaveCollection(collection *document.Collection) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.collections[collection.ID] = copyCollection(collection)
	return nil
}

func (s *MemoryStore) IncrementAttempts(signerID string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	signer, ok := s.signers[signerID]
	if !ok || signer.Authentication == nil || signer.Authentication.Otp == nil {
		return 0, ErrNotFound
	}
	signer.Authentication.Otp.Attempts++
	return signer.Authentication.Otp.Attempts, nil
}

func (s *MemoryStore) IncrementIdentificationAttempts(signerID string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	signer, ok := s.signers[signerID]
	if !ok || signer.Authentication == nil {
		return 0, ErrNotFound
	}
	signer.Authentication.IdentificationAttempts++
	return signer.Authentication.IdentificationAttempts, nil
}

func (s *MemoryStore) DeclineCollection(collectionID, signerID, noteText string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	collection, ok := s.collections[collectionID]
	if !ok {
		return ErrNotFound
	}
	signer, ok := s.signers[signerID]
	if !ok {
		return ErrNotFound
	}

	collection.Status = document.StatusDeclined
	collection.Notes = append(collection.Notes, document.Note{Text: noteText, CreatedAt: time.Now()})
	signer.Status = document.StatusRejected
	return nil
}

func copyCredential(credential *document.Credential) *document.Credential {
	clone := &document.Credential{}
	deepCopy(credential, clone)
	return clone
}

func copySigner(signer *document.Signer) *document.Signer {
	clone := &document.Signer{}
	deepCopy(signer, clone)
	return clone
}

func copyCollection(collection *document.Collection) *document.Collection {
	clone := &document.Collection{}
	deepCopy(collection, clone)
	return clone
}

// deepCopy round-trips a record through JSON so callers never share memory
// with the store.
func deepCopy(src, dst interface{}) {
	data, _ := json.Marshal(src)
	_ = json.Unmarshal(data, dst)
}
