package services

import (
	"time"

	"github.com/signato/signato-auth/pkg/document"
)

// TokenResolver maps an opaque session token to an authentication context.
// It is a pure read; callers own any state transition.
type TokenResolver interface {
	// Resolve returns the signer and collection a token belongs to, or
	// ErrInvalidToken / ErrInvalidCollection.
	Resolve(token string) (*SessionContext, error)
	// ResolveActive is Resolve plus a check that the collection is still in a
	// state that accepts signing activity.
	ResolveActive(token string) (*SessionContext, error)
}

// OtpAuthenticator issues and validates one-time codes and shared-secret
// passwords for a signer session.
type OtpAuthenticator interface {
	RequestChallenge(request ChallengeRequest) (*ChallengeResult, error)
	// ValidateCode checks a submitted code against the stored challenge and
	// returns the secondary auth token on success.
	ValidateCode(token, code string, incrementAttempts bool) (string, error)
}

// IdentityBroker delegates signer identity proofing to the external visual
// verification service.
type IdentityBroker interface {
	// StartFlow creates a remote identification flow and returns the URL the
	// signer must be redirected to.
	StartFlow(signerToken string) (string, error)
	// CheckFlow polls the remote result and returns the secondary auth token
	// when the signer passed and the identity matches.
	CheckFlow(signerToken, code string) (string, error)
}

// Sender picks a notification channel for a signer and composes the one-time
// code message.
type Sender interface {
	SendCode(signer *document.Signer, code string, expires time.Time) (document.DeliveryChannel, error)
}

// Notifier performs the actual delivery of a composed message. Mail and SMS
// transport live outside this subsystem.
type Notifier interface {
	Notify(channel document.DeliveryChannel, recipient, message string) error
}
