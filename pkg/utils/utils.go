package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

func LogExit(status int) {
	logrus.Debugf("Exiting with status: %v", status)
	os.Exit(status)
}

// SetLogLevel applies the first parsable level: LOG_LEVEL wins over the
// given fallbacks.
func SetLogLevel(fallbacks ...string) {
	for _, l := range append([]string{GetLogLevel()}, fallbacks...) {
		if len(l) < 1 {
			continue
		}
		lvl, err := logrus.ParseLevel(l)
		if err != nil {
			logrus.Warnf("Ignoring log level %q: %v", l, err)
			continue
		}
		logrus.SetLevel(lvl)
		return
	}
}
