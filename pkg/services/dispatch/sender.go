package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/goodsign/monday"

	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/document"
	"github.com/signato/signato-auth/pkg/services"
)

// DefaultMessageTemplate is used when no template is configured.
const DefaultMessageTemplate = `Your signing code is {{code}}. It is valid until {{expires}}.`

const expiryLayout = "2 January 2006 15:04"

// ErrNoContactChannel is returned when a signer has neither an email address
// nor a phone number on file.
var ErrNoContactChannel = errors.New("signer has no contact channel")

// Sender composes the one-time code message and picks the delivery channel.
type Sender struct {
	notifier services.Notifier
	template string
}

var _ services.Sender = (*Sender)(nil)

// NewSender returns a Sender rendering messages with the given mustache
// template. Pass an empty template for the default.
func NewSender(notifier services.Notifier, template string) *Sender {
	if template == "" {
		template = DefaultMessageTemplate
	}
	return &Sender{notifier: notifier, template: template}
}

// SendCode renders the message and delivers it. When both email and phone are
// on file the code is sent over the channel the collection itself did NOT
// travel through, so possession of one inbox alone does not open the session.
func (s *Sender) SendCode(signer *document.Signer, code string, expires time.Time) (document.DeliveryChannel, error) {
	channel, recipient, err := pickChannel(signer)
	if err != nil {
		return "", err
	}

	message, err := mustache.Render(s.template, map[string]string{
		"code":    code,
		"expires": monday.Format(expires, expiryLayout, localeFor(signer.Language)),
		"name":    signer.Name,
	})
	if err != nil {
		return "", fmt.Errorf("could not render code message: %w", err)
	}

	if err := s.notifier.Notify(channel, recipient, message); err != nil {
		return "", err
	}
	logging.Log().Debugf("code message dispatched via %s", channel)
	return channel, nil
}

func pickChannel(signer *document.Signer) (document.DeliveryChannel, string, error) {
	// in-person signing shows the code on the tablet itself
	if signer.Delivery == document.ChannelTablet {
		return document.ChannelTablet, signer.ID, nil
	}

	hasEmail := signer.Email != ""
	hasPhone := signer.Phone != ""

	switch {
	case hasEmail && hasPhone:
		if signer.Delivery == document.ChannelEmail {
			return document.ChannelSMS, signer.Phone, nil
		}
		return document.ChannelEmail, signer.Email, nil
	case hasEmail:
		return document.ChannelEmail, signer.Email, nil
	case hasPhone:
		return document.ChannelSMS, signer.Phone, nil
	}
	return "", "", ErrNoContactChannel
}

// localeFor maps a signer language to a monday locale. Unknown languages fall
// back to English.
func localeFor(language string) monday.Locale {
	switch strings.ToLower(language) {
	case "lt":
		return monday.LocaleLtLT
	case "nl":
		return monday.LocaleNlNL
	case "de":
		return monday.LocaleDeDE
	case "fr":
		return monday.LocaleFrFR
	case "ru":
		return monday.LocaleRuRU
	default:
		return monday.LocaleEnUS
	}
}
