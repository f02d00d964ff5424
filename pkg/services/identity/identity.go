package identity

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/document"
	"github.com/signato/signato-auth/pkg/services"
	"github.com/signato/signato-auth/pkg/storage"
)

// ProcessResult is the outcome reported by the verification service.
type ProcessResult string

const (
	// ResultPassed means the person completed verification successfully
	ResultPassed ProcessResult = "Passed"
	// ResultFailed means verification ended negatively
	ResultFailed ProcessResult = "Failed"
	// ResultPending means the flow is still running
	ResultPending ProcessResult = "Pending"
)

// Config holds the verification service settings. The service password is
// stored sealed and only opened at call time.
type Config struct {
	ServiceURL        string
	Username          string
	EncryptedPassword string
	// SecretKey opens EncryptedPassword, see Seal/Open in secrets.go.
	SecretKey          []byte
	SuccessRedirectURL string
	ErrorRedirectURL   string
	// DefaultLanguage is the language that needs no locale rewrite, e.g. "en".
	DefaultLanguage string
}

func (c Config) complete() bool {
	return c.ServiceURL != "" && c.Username != "" && c.EncryptedPassword != ""
}

// Broker implements services.IdentityBroker against the HTTPS verification
// service. No retries happen here; retry policy is a caller concern.
type Broker struct {
	config   Config
	store    storage.Store
	resolver services.TokenResolver
	client   *http.Client
}

var _ services.IdentityBroker = (*Broker)(nil)

// NewBroker wires a Broker. A nil client gets a 30 second timeout default.
func NewBroker(config Config, store storage.Store, resolver services.TokenResolver, client *http.Client) *Broker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Broker{config: config, store: store, resolver: resolver, client: client}
}

// StartFlow creates a remote identification flow for the signer and returns
// the redirect URL, localized for the signer's language.
func (b *Broker) StartFlow(signerToken string) (string, error) {
	if !b.config.complete() {
		return "", services.ErrVisualIdentityMissingSettings
	}

	session, err := b.resolver.ResolveActive(signerToken)
	if err != nil {
		return "", err
	}
	if session.Signer.Authentication == nil || session.Signer.Authentication.Mode != document.ModeVisualIdentity {
		return "", services.ErrVisualIdentityNotRequired
	}

	attempts, err := b.store.IncrementIdentificationAttempts(session.Signer.ID)
	if err != nil {
		return "", errors.Wrap(err, "could not count identification attempt")
	}
	if attempts > services.MaxAttempts {
		return "", services.ErrMaximumAttemptsReached
	}

	bearer, err := b.login()
	if err != nil {
		return "", err
	}

	flowURL, err := b.createIdentification(bearer, signerToken)
	if err != nil {
		return "", err
	}

	return b.localizeURL(flowURL, session.Signer.Language), nil
}

// CheckFlow polls the remote result and hands out the signer's secondary auth
// token when the flow passed for the right person.
func (b *Broker) CheckFlow(signerToken, code string) (string, error) {
	if !b.config.complete() {
		return "", services.ErrVisualIdentityMissingSettings
	}

	session, err := b.resolver.ResolveActive(signerToken)
	if err != nil {
		return "", err
	}
	record := session.Signer.Authentication
	if record == nil || record.Mode != document.ModeVisualIdentity {
		return "", services.ErrVisualIdentityNotRequired
	}
	if record.Otp == nil {
		return "", services.ErrMissingAuthenticationConfig
	}

	bearer, err := b.login()
	if err != nil {
		return "", err
	}

	result, err := b.authResult(bearer, signerToken, code)
	if err != nil {
		return "", err
	}
	if result.ProcessResult != ResultPassed {
		logging.Log().Infof("identification for signer %s did not pass: %s", session.Signer.ID, result.ProcessResult)
		return "", services.ErrOperationFailed
	}

	expected := record.Otp.Identification
	if !strings.EqualFold(expected, result.PersonalID) && !strings.EqualFold(expected, result.DocumentNumber) {
		logging.Log().Warnf("identification for signer %s passed for a different person", session.Signer.ID)
		return "", services.ErrOperationFailedWrongUser
	}

	// the proofing requirement is consumed, a second pass is not needed
	record.Mode = document.ModeNone
	if err := b.store.SaveSigner(session.Signer); err != nil {
		return "", errors.Wrap(err, "could not consume identification requirement")
	}

	return session.Credential.AuthToken, nil
}

// localizeURL rewrites the locale query parameter of the redirect URL when the
// signer's language differs from the default.
func (b *Broker) localizeURL(raw, language string) string {
	if language == "" || strings.EqualFold(language, b.config.DefaultLanguage) {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		logging.Log().WithError(err).Warn("verification service returned an unparsable URL")
		return raw
	}
	query := parsed.Query()
	query.Set("locale", strings.ToLower(language))
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
