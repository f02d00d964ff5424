package document

import "time"

// Status describes the coarse lifecycle state of a collection or a signer.
type Status string

const (
	// StatusCreated means the collection exists but was not sent out yet
	StatusCreated Status = "Created"
	// StatusSent means the collection was delivered to its signers
	StatusSent Status = "Sent"
	// StatusViewed means at least one signer opened the collection
	StatusViewed Status = "Viewed"
	// StatusSigned means all signatures were collected
	StatusSigned Status = "Signed"
	// StatusDeclined means the collection was declined, either by a signer or by the system
	StatusDeclined Status = "Declined"
	// StatusRejected is the signer-level counterpart of Declined
	StatusRejected Status = "Rejected"
	// StatusCanceled means the owner withdrew the collection
	StatusCanceled Status = "Canceled"
	// StatusDeleted means the collection was removed
	StatusDeleted Status = "Deleted"
)

// IsTerminal returns true when no further signing activity is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSigned, StatusDeclined, StatusRejected, StatusCanceled, StatusDeleted:
		return true
	}
	return false
}

// AuthenticationMode selects how a signer must prove itself before signing.
type AuthenticationMode string

const (
	// ModeNone disables challenge-response authentication for the signer
	ModeNone AuthenticationMode = "None"
	// ModePassword requires the shared-secret password only
	ModePassword AuthenticationMode = "PasswordRequired"
	// ModeCode requires a one-time code only
	ModeCode AuthenticationMode = "CodeRequired"
	// ModeCodeAndPassword requires both the password and a one-time code
	ModeCodeAndPassword AuthenticationMode = "CodeAndPasswordRequired"
	// ModeVisualIdentity delegates proofing to the external verification service
	ModeVisualIdentity AuthenticationMode = "ExternalVisualIdentity"
)

// RequiresPassword returns true when the mode includes the shared-secret check.
func (m AuthenticationMode) RequiresPassword() bool {
	return m == ModePassword || m == ModeCodeAndPassword
}

// RequiresCode returns true when the mode includes a one-time code.
func (m AuthenticationMode) RequiresCode() bool {
	return m == ModeCode || m == ModeCodeAndPassword
}

// OtpDetails holds the challenge state for one signer.
type OtpDetails struct {
	Code           string             `json:"code"`
	ExpirationTime time.Time          `json:"expirationTime"`
	Attempts       int                `json:"attempts"`
	Identification string             `json:"identification"`
	Mode           AuthenticationMode `json:"mode"`
}

// AuthenticationRecord is created together with its signer and only mutated by
// the authentication services. It dies with the signer record.
type AuthenticationRecord struct {
	Mode AuthenticationMode `json:"mode"`
	Otp  *OtpDetails        `json:"otp"`
	// IdentificationAttempts counts visual identity flow starts, capped separately
	// from the OTP attempts.
	IdentificationAttempts int `json:"identificationAttempts"`
}

// DeliveryChannel is the channel the collection itself was sent through.
type DeliveryChannel string

const (
	// ChannelEmail delivery via email
	ChannelEmail DeliveryChannel = "email"
	// ChannelSMS delivery via text message
	ChannelSMS DeliveryChannel = "sms"
	// ChannelTablet delivery on an in-person signing device
	ChannelTablet DeliveryChannel = "tablet"
)

// Signer is one party of a collection.
type Signer struct {
	ID             string                `json:"id"`
	CollectionID   string                `json:"collectionId"`
	Name           string                `json:"name"`
	Email          string                `json:"email"`
	Phone          string                `json:"phone"`
	Language       string                `json:"language"`
	Delivery       DeliveryChannel       `json:"delivery"`
	Status         Status                `json:"status"`
	Authentication *AuthenticationRecord `json:"authentication"`
}

// Note is a free-text annotation on a collection, e.g. the lockout reason.
type Note struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Collection groups the documents sent out for signature in one envelope.
// Only the fields this subsystem touches are modelled here; rendering and
// file persistence belong to the document service.
type Collection struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Notes  []Note `json:"notes"`
}

// Credential binds an opaque session token to exactly one signer within
// exactly one collection. AuthToken is the secondary token handed out once
// the primary one was exchanged, e.g. after identity proofing passed.
type Credential struct {
	Token        string `json:"token"`
	AuthToken    string `json:"authToken"`
	SignerID     string `json:"signerId"`
	CollectionID string `json:"collectionId"`
	// Assertion is the signed internal credential the token resolves through.
	Assertion string `json:"assertion"`
}
