package logging

import (
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log *logrus.Entry

// Log returns the standard logger for this module. All packages log through
// this entry so output carries the module prefix.
func Log() *logrus.Entry {
	if log == nil {
		log = logrus.StandardLogger().WithField("module", "auth")
	}
	return log
}

// Configure sets the formatter and level for the standard logger.
// Called once from main.
func Configure(verbosity string) error {
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}
