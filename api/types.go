package api

// Wire types of the authentication API. Field names are part of the browser
// contract.

// ChallengeRequest asks for a one-time code or a password check.
type ChallengeRequest struct {
	Token          string `json:"token"`
	Identification string `json:"identification,omitempty"`
	// Preview suppresses attempt counting, e.g. for a resend button.
	Preview bool `json:"preview,omitempty"`
}

// ChallengeResponse reports the delivery channel. DeliveredVia is empty when
// the mode required no code.
type ChallengeResponse struct {
	DeliveredVia string `json:"deliveredVia,omitempty"`
	SessionToken string `json:"sessionToken"`
}

// VerifyRequest submits a code for validation.
type VerifyRequest struct {
	Token string `json:"token"`
	Code  string `json:"code"`
}

// AuthTokenResponse carries the secondary token handed out after successful
// authentication.
type AuthTokenResponse struct {
	AuthToken string `json:"authToken"`
}

// IdentitySessionRequest starts a visual identity flow.
type IdentitySessionRequest struct {
	Token string `json:"token"`
}

// IdentitySessionResponse carries the redirect URL of the remote flow.
type IdentitySessionResponse struct {
	URL string `json:"url"`
}

// SigningSessionRequest asks for a hardware signing room.
type SigningSessionRequest struct {
	Token string `json:"token"`
}

// SigningSessionResponse carries the room and the custom URI that launches
// the desktop agent.
type SigningSessionResponse struct {
	RoomID    string `json:"roomId"`
	LaunchURI string `json:"launchUri"`
}

// ErrorResponse is the uniform error body with a stable machine-readable code.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
