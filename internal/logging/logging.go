// Package logging sets up the shared logrus logger, grounded on the
// cmd/cli node-startup pattern of parsing a "logging.level" string into a
// logrus.Level and applying it.
package logging

import (
	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger at the given level (an empty string defaults
// to "info"), writing structured fields with the text formatter.
func New(level string) (*logrus.Logger, error) {
	if level == "" {
		level = "info"
	}
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(lv)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}
