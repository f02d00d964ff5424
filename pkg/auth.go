package pkg

import (
	"net/http"

	"github.com/signato/signato-auth/pkg/services"
	"github.com/signato/signato-auth/pkg/services/dispatch"
	"github.com/signato/signato-auth/pkg/services/identity"
	"github.com/signato/signato-auth/pkg/services/otp"
	"github.com/signato/signato-auth/pkg/services/token"
	"github.com/signato/signato-auth/pkg/storage"
)

// AuthConfig collects the knobs of the authentication subsystem. Components
// receive it explicitly through this constructor; there is no ambient lookup.
type AuthConfig struct {
	AssertionSecret  []byte
	OtpExpiryMinutes int
	MessageTemplate  string
	Identity         identity.Config
}

// Auth assembles the authentication services over one store. It is the single
// wiring point the commands and the HTTP layer use.
type Auth struct {
	Store    storage.Store
	Resolver services.TokenResolver
	OTP      services.OtpAuthenticator
	Identity services.IdentityBroker
	Sender   services.Sender

	// TokenMinter mints assertions when the document service registers signers.
	TokenMinter *token.Resolver
}

// NewAuth wires the services. A nil notifier falls back to log-only delivery.
func NewAuth(config AuthConfig, store storage.Store, notifier services.Notifier, client *http.Client) *Auth {
	if notifier == nil {
		notifier = dispatch.LoggingNotifier{}
	}
	if config.OtpExpiryMinutes == 0 {
		config.OtpExpiryMinutes = 10
	}

	resolver := token.NewResolver(store, config.AssertionSecret)
	sender := dispatch.NewSender(notifier, config.MessageTemplate)

	return &Auth{
		Store:       store,
		Resolver:    resolver,
		OTP:         otp.NewAuthenticator(otp.Config{ExpiryMinutes: config.OtpExpiryMinutes}, store, resolver, sender),
		Identity:    identity.NewBroker(config.Identity, store, resolver, client),
		Sender:      sender,
		TokenMinter: resolver,
	}
}
