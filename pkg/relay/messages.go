package relay

import "strings"

// Method names the RPC-over-duplex-channel calls of the relay protocol.
// The wire names are fixed, desktop agents in the field depend on them.
type Method string

const (
	// MethodConnect joins the sending peer to a room
	MethodConnect Method = "Connect"
	// MethodGetHash asks the agent to sign a hash for one field
	MethodGetHash Method = "GetHash"
	// MethodSetSignature returns a signed hash for one field
	MethodSetSignature Method = "SetSignatureAsync"
	// MethodError carries a free-text diagnostic in either direction
	MethodError Method = "SendErrorMessage"
	// MethodMessage is the completion signal
	MethodMessage Method = "GetMessage"
)

// Message is the JSON envelope shared by both transports.
type Message struct {
	Method     Method `json:"method"`
	RoomID     string `json:"roomId"`
	FieldName  string `json:"fieldName,omitempty"`
	Hash       []byte `json:"hash,omitempty"`
	SignedHash []byte `json:"signedHash,omitempty"`
	Text       string `json:"text,omitempty"`
}

// IsSuccess reports whether a completion text acknowledges success. The
// substring check is case-insensitive and is the sole success criterion.
func IsSuccess(text string) bool {
	return strings.Contains(strings.ToLower(text), "success")
}

// RoomKey derives the pairing key for one signing round trip.
func RoomKey(collectionID, signerToken string) string {
	return collectionID + ":" + signerToken
}
