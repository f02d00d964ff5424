package dispatch

import (
	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/document"
	"github.com/signato/signato-auth/pkg/services"
)

// LoggingNotifier logs composed messages instead of delivering them. Mail and
// SMS transport belong to the notification service; this keeps single-binary
// and development runs working without one.
type LoggingNotifier struct{}

var _ services.Notifier = LoggingNotifier{}

func (LoggingNotifier) Notify(channel document.DeliveryChannel, recipient, message string) error {
	logging.Log().Infof("notify %s over %s: %s", recipient, channel, message)
	return nil
}
