package services

import (
	"errors"

	"github.com/signato/signato-auth/pkg/document"
)

// SessionContext is the result of resolving a session token: exactly one
// signer within exactly one collection.
type SessionContext struct {
	Credential *document.Credential
	Signer     *document.Signer
	Collection *document.Collection
}

// ChallengeRequest asks for a new one-time code or a password check.
type ChallengeRequest struct {
	Token string
	// Identification is the shared-secret password, when the mode requires one.
	Identification string
	// IncrementAttempts makes a failed password check count towards the lockout
	// threshold. Preview calls leave it false.
	IncrementAttempts bool
}

// ChallengeResult reports how and whether a code was delivered.
type ChallengeResult struct {
	// DeliveredVia is empty when the mode required no code.
	DeliveredVia document.DeliveryChannel
	SessionToken string
}

// MaxAttempts is the shared 3-strikes threshold for OTP, password and visual
// identity flows. Reaching it is terminal for the session.
const MaxAttempts = 3

// Lockout note texts attached to the collection when the threshold is reached.
const (
	OtpAttemptsExceededNote      = "OTP submission attempts exceeded"
	PasswordAttemptsExceededNote = "Password submission attempts exceeded"
)

// ErrInvalidToken is returned when a token does not map to a stored credential.
var ErrInvalidToken = errors.New("invalid token")

// ErrInvalidCollection is returned when the owning collection cannot be loaded
// or is in a terminal state unsuitable for the requested operation.
var ErrInvalidCollection = errors.New("invalid document collection")

// ErrInvalidAuthenticationMode is returned when the operation does not apply
// to the signer's configured mode.
var ErrInvalidAuthenticationMode = errors.New("invalid authentication mode")

// ErrMissingAuthenticationConfig means the signer record lacks its
// authentication record or OTP details. This is a configuration defect, not a
// user-facing authentication failure.
var ErrMissingAuthenticationConfig = errors.New("missing authentication configuration")

// ErrInvalidIdentification is returned on a password mismatch.
var ErrInvalidIdentification = errors.New("invalid identification")

// ErrInvalidCode is returned when a submitted code is wrong or expired.
var ErrInvalidCode = errors.New("invalid or expired code")

// ErrSubmissionLimitExceeded is the terminal lockout error. By the time the
// caller sees it the collection is already declined.
var ErrSubmissionLimitExceeded = errors.New("submission limit exceeded")

// ErrVisualIdentityMissingSettings is returned when the verification service
// URL or credentials are absent from the configuration.
var ErrVisualIdentityMissingSettings = errors.New("visual identity settings missing")

// ErrVisualIdentityNotRequired is returned when a signer whose mode is not
// ExternalVisualIdentity tries to enter the identity flow.
var ErrVisualIdentityNotRequired = errors.New("visual identity not required for signer")

// ErrMaximumAttemptsReached caps the number of identity flow starts per signer.
var ErrMaximumAttemptsReached = errors.New("maximum identification attempts reached")

// ErrOperationFailed is returned when the remote identity flow did not pass.
var ErrOperationFailed = errors.New("identification operation failed")

// ErrOperationFailedWrongUser is returned when the remote flow passed but the
// verified identity does not belong to the signer.
var ErrOperationFailedWrongUser = errors.New("identification passed for a different person")

// ErrCantReadTokenFromService covers any non-success response from the
// verification service, so operators can tell outages from user failures.
var ErrCantReadTokenFromService = errors.New("cannot read token from verification service")
