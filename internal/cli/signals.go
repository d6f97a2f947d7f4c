package cli

import (
	"os"

	"github.com/sirupsen/logrus"
)

// exitCodeInterrupted is used when a second signal cuts the graceful stop
// short.
const exitCodeInterrupted = 130

// watchSignals calls stop on the first signal from sigCh and exit on the
// second. It returns once done is closed or exit has been called.
func watchSignals(sigCh <-chan os.Signal, done <-chan struct{}, log logrus.FieldLogger, stop func(), exit func(int)) {
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("received signal, send again to exit immediately")
		stop()
	case <-done:
		return
	}

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Warn("received second signal, exiting")
		exit(exitCodeInterrupted)
	case <-done:
	}
}
