package cli

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/zkfuzz/internal/config"
)

// newLogger returns a logger writing to w.
func newLogger(level, format string, w io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidLogLevel, level)
	}

	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)

	switch format {
	case config.LogFormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{})
	case config.LogFormatText:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidLogFormat, format)
	}

	return log, nil
}
