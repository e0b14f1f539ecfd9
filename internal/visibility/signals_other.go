//go:build !unix

package visibility

import "github.com/sirupsen/logrus"

// NewSignalSource returns a source that only waits for cancellation; there
// are no user signals on this platform.
func NewSignalSource(target Target, logger *logrus.Entry) *SignalSource {
	return &SignalSource{
		target: target,
		logger: logger.WithField("component", "visibility"),
	}
}
