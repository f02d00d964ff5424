package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/document"
	"github.com/signato/signato-auth/pkg/services"
	"github.com/signato/signato-auth/pkg/storage"
)

// nowFunc can be fixed in tests.
var nowFunc = time.Now

// Config holds the challenge parameters.
type Config struct {
	// ExpiryMinutes is how long an issued code stays valid.
	ExpiryMinutes int
}

// Authenticator implements services.OtpAuthenticator. One instance serves all
// signers; per-signer state lives in the store.
type Authenticator struct {
	config   Config
	store    storage.Store
	resolver services.TokenResolver
	sender   services.Sender
}

var _ services.OtpAuthenticator = (*Authenticator)(nil)

// NewAuthenticator wires an Authenticator.
func NewAuthenticator(config Config, store storage.Store, resolver services.TokenResolver, sender services.Sender) *Authenticator {
	return &Authenticator{config: config, store: store, resolver: resolver, sender: sender}
}

// RequestChallenge resolves the signer, checks the password when the mode
// requires one and issues a fresh code. The code is persisted before it is
// handed to the sender, so a delivery crash never leaves an unverifiable code
// in flight.
func (a *Authenticator) RequestChallenge(request services.ChallengeRequest) (*services.ChallengeResult, error) {
	session, err := a.resolver.ResolveActive(request.Token)
	if err != nil {
		return nil, err
	}

	record := session.Signer.Authentication
	if record == nil {
		return nil, services.ErrMissingAuthenticationConfig
	}
	if record.Mode == document.ModeNone {
		return nil, services.ErrInvalidAuthenticationMode
	}
	if record.Otp == nil {
		return nil, services.ErrMissingAuthenticationConfig
	}

	if record.Mode.RequiresPassword() {
		if request.Identification != record.Otp.Identification {
			if request.IncrementAttempts {
				if err := a.registerFailure(session, services.PasswordAttemptsExceededNote); err != nil {
					return nil, err
				}
			}
			return nil, services.ErrInvalidIdentification
		}
	}

	if record.Mode == document.ModePassword {
		// password checked, nothing to deliver
		return &services.ChallengeResult{SessionToken: request.Token}, nil
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("could not generate code: %w", err)
	}
	expires := nowFunc().Add(time.Duration(a.config.ExpiryMinutes) * time.Minute)

	record.Otp.Code = code
	record.Otp.ExpirationTime = expires
	if err := a.store.SaveSigner(session.Signer); err != nil {
		return nil, fmt.Errorf("could not persist challenge: %w", err)
	}

	channel, err := a.sender.SendCode(session.Signer, code, expires)
	if err != nil {
		return nil, fmt.Errorf("could not deliver code: %w", err)
	}
	logging.Log().WithField("signer", session.Signer.ID).Debugf("challenge delivered via %s", channel)

	return &services.ChallengeResult{DeliveredVia: channel, SessionToken: request.Token}, nil
}

// ValidateCode succeeds iff the trimmed code matches exactly and the
// expiration time has not passed. A failed check with incrementAttempts set
// counts towards the shared lockout threshold.
func (a *Authenticator) ValidateCode(token, code string, incrementAttempts bool) (string, error) {
	session, err := a.resolver.ResolveActive(token)
	if err != nil {
		return "", err
	}

	record := session.Signer.Authentication
	if record == nil || record.Otp == nil {
		return "", services.ErrMissingAuthenticationConfig
	}
	if !record.Mode.RequiresCode() {
		return "", services.ErrInvalidAuthenticationMode
	}

	if strings.TrimSpace(code) == record.Otp.Code && !nowFunc().After(record.Otp.ExpirationTime) {
		return session.Credential.AuthToken, nil
	}

	if incrementAttempts {
		if err := a.registerFailure(session, services.OtpAttemptsExceededNote); err != nil {
			return "", err
		}
	}
	return "", services.ErrInvalidCode
}

// registerFailure increments the attempt counter and escalates to the
// collection-wide decline when the threshold is reached. The escalation is a
// one-way transition, not a retry.
func (a *Authenticator) registerFailure(session *services.SessionContext, noteText string) error {
	attempts, err := a.store.IncrementAttempts(session.Signer.ID)
	if err == storage.ErrNotFound {
		return services.ErrMissingAuthenticationConfig
	} else if err != nil {
		return fmt.Errorf("could not register failed attempt: %w", err)
	}
	if attempts < services.MaxAttempts {
		return nil
	}

	if err := a.store.DeclineCollection(session.Collection.ID, session.Signer.ID, noteText); err != nil {
		return fmt.Errorf("could not decline collection on lockout: %w", err)
	}
	logging.Log().WithField("collection", session.Collection.ID).
		Warnf("signer %s locked out: %s", session.Signer.ID, noteText)
	return services.ErrSubmissionLimitExceeded
}

// generateCode draws a 6-digit zero-padded numeric code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
