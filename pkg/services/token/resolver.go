package token

import (
	"fmt"

	"github.com/dgrijalva/jwt-go"

	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/document"
	"github.com/signato/signato-auth/pkg/services"
	"github.com/signato/signato-auth/pkg/storage"
)

// AssertionClaims is the signed internal credential a session token resolves
// through. The token itself is opaque; the assertion binds it to one signer in
// one collection.
type AssertionClaims struct {
	jwt.StandardClaims
	CollectionID string `json:"cid"`
}

// Resolver implements services.TokenResolver on top of the credential store.
type Resolver struct {
	store  storage.Store
	secret []byte
}

var _ services.TokenResolver = (*Resolver)(nil)

// NewResolver returns a Resolver verifying assertions with the given HMAC secret.
func NewResolver(store storage.Store, assertionSecret []byte) *Resolver {
	return &Resolver{store: store, secret: assertionSecret}
}

func (r *Resolver) Resolve(token string) (*services.SessionContext, error) {
	credential, err := r.store.CredentialByToken(token)
	if err == storage.ErrNotFound {
		return nil, services.ErrInvalidToken
	} else if err != nil {
		return nil, fmt.Errorf("could not load credential: %w", err)
	}

	claims, err := r.parseAssertion(credential.Assertion)
	if err != nil {
		logging.Log().WithError(err).Warn("session token carries an invalid assertion")
		return nil, services.ErrInvalidToken
	}
	if claims.Subject != credential.SignerID || claims.CollectionID != credential.CollectionID {
		logging.Log().Warn("session token assertion does not match its credential")
		return nil, services.ErrInvalidToken
	}

	signer, err := r.store.SignerByID(credential.SignerID)
	if err != nil {
		return nil, services.ErrInvalidToken
	}

	collection, err := r.store.CollectionByID(credential.CollectionID)
	if err != nil {
		return nil, services.ErrInvalidCollection
	}

	return &services.SessionContext{
		Credential: credential,
		Signer:     signer,
		Collection: collection,
	}, nil
}

func (r *Resolver) ResolveActive(token string) (*services.SessionContext, error) {
	session, err := r.Resolve(token)
	if err != nil {
		return nil, err
	}
	if session.Collection.Status.IsTerminal() {
		return nil, services.ErrInvalidCollection
	}
	return session, nil
}

// NewAssertion mints the signed assertion for a credential. The document
// service calls this when it adds a signer to a collection.
func (r *Resolver) NewAssertion(signer *document.Signer) (string, error) {
	claims := AssertionClaims{
		StandardClaims: jwt.StandardClaims{Subject: signer.ID},
		CollectionID:   signer.CollectionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func (r *Resolver) parseAssertion(assertion string) (*AssertionClaims, error) {
	parser := &jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Name}}
	parsed, err := parser.ParseWithClaims(assertion, &AssertionClaims{}, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*AssertionClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("assertion claims have the wrong shape")
	}
	return claims, nil
}
