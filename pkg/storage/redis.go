package storage

import (
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"

	"github.com/signato/signato-auth/pkg/document"
)

const (
	credentialKeyPrefix = "signato:credential:"
	authTokenKeyPrefix  = "signato:authtoken:"
	signerKeyPrefix     = "signato:signer:"
	collectionKeyPrefix = "signato:collection:"
)

// RedisStore persists records as JSON values in redis, for deployments where
// more than one node serves the same signing sessions.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) CredentialByToken(token string) (*document.Credential, error) {
	credential := &document.Credential{}
	err := s.getJSON(credentialKeyPrefix+token, credential)
	if err == nil {
		return credential, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	// fall back to the secondary token index
	primary, err := s.client.Get(authTokenKeyPrefix + token).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "could not read auth token index")
	}
	if err := s.getJSON(credentialKeyPrefix+primary, credential); err != nil {
		return nil, err
	}
	return credential, nil
}

func (s *RedisStore) SaveCredential(credential *document.Credential) error {
	if err := s.setJSON(credentialKeyPrefix+credential.Token, credential); err != nil {
		return err
	}
	if credential.AuthToken != "" {
		if err := s.client.Set(authTokenKeyPrefix+credential.AuthToken, credential.Token, 0).Err(); err != nil {
			return errors.Wrap(err, "could not write auth token index")
		}
	}
	return nil
}

func (s *RedisStore) SignerByID(id string) (*document.Signer, error) {
	signer := &document.Signer{}
	if err := s.getJSON(signerKeyPrefix+id, signer); err != nil {
		return nil, err
	}
	return signer, nil
}

func (s *RedisStore) SaveSigner(signer *document.Signer) error {
	return s.setJSON(signerKeyPrefix+signer.ID, signer)
}

func (s *RedisStore) CollectionByID(id string) (*document.Collection, error) {
	collection := &document.Collection{}
	if err := s.getJSON(collectionKeyPrefix+id, collection); err != nil {
		return nil, err
	}
	return collection, nil
}

func (s *RedisStore) SaveCollection(collection *document.Collection) error {
	return s.setJSON(collectionKeyPrefix+collection.ID, collection)
}

func (s *RedisStore) IncrementAttempts(signerID string) (int, error) {
	return s.incrementSigner(signerID, func(signer *document.Signer) (int, error) {
		if signer.Authentication == nil || signer.Authentication.Otp == nil {
			return 0, ErrNotFound
		}
		signer.Authentication.Otp.Attempts++
		return signer.Authentication.Otp.Attempts, nil
	})
}

func (s *RedisStore) IncrementIdentificationAttempts(signerID string) (int, error) {
	return s.incrementSigner(signerID, func(signer *document.Signer) (int, error) {
		if signer.Authentication == nil {
			return 0, ErrNotFound
		}
		signer.Authentication.IdentificationAttempts++
		return signer.Authentication.IdentificationAttempts, nil
	})
}

// incrementSigner performs an optimistic read-modify-write on the signer
// record. WATCH makes concurrent submissions for the same signer retry instead
// of under-counting.
func (s *RedisStore) incrementSigner(signerID string, bump func(*document.Signer) (int, error)) (int, error) {
	key := signerKeyPrefix + signerID
	var value int

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(key).Result()
		if err == redis.Nil {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		signer := &document.Signer{}
		if err := json.Unmarshal([]byte(data), signer); err != nil {
			return errors.Wrap(err, "corrupt signer record")
		}
		if value, err = bump(signer); err != nil {
			return err
		}
		encoded, err := json.Marshal(signer)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(func(pipe redis.Pipeliner) error {
			pipe.Set(key, encoded, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := s.client.Watch(txf, key)
		if err == nil {
			return value, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return 0, err
	}
	return 0, errors.New("signer record contention, giving up")
}

func (s *RedisStore) DeclineCollection(collectionID, signerID, noteText string) error {
	collection, err := s.CollectionByID(collectionID)
	if err != nil {
		return err
	}
	signer, err := s.SignerByID(signerID)
	if err != nil {
		return err
	}

	collection.Status = document.StatusDeclined
	collection.Notes = append(collection.Notes, document.Note{Text: noteText, CreatedAt: time.Now()})
	signer.Status = document.StatusRejected

	collectionJSON, err := json.Marshal(collection)
	if err != nil {
		return err
	}
	signerJSON, err := json.Marshal(signer)
	if err != nil {
		return err
	}

	// one round trip so the decline and the rejection land together
	_, err = s.client.TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.Set(collectionKeyPrefix+collectionID, collectionJSON, 0)
		pipe.Set(signerKeyPrefix+signerID, signerJSON, 0)
		return nil
	})
	return errors.Wrap(err, "could not decline collection")
}

func (s *RedisStore) getJSON(key string, target interface{}) error {
	data, err := s.client.Get(key).Result()
	if err == redis.Nil {
		return ErrNotFound
	} else if err != nil {
		return errors.Wrapf(err, "could not read %s", key)
	}
	return json.Unmarshal([]byte(data), target)
}

func (s *RedisStore) setJSON(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return errors.Wrapf(s.client.Set(key, data, 0).Err(), "could not write %s", key)
}
