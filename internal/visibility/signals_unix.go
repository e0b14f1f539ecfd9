//go:build unix

package visibility

import (
	"syscall"

	"github.com/sirupsen/logrus"
)

// NewSignalSource blurs target on SIGUSR1 and focuses it on SIGUSR2.
func NewSignalSource(target Target, logger *logrus.Entry) *SignalSource {
	return &SignalSource{
		target: target,
		blur:   syscall.SIGUSR1,
		focus:  syscall.SIGUSR2,
		logger: logger.WithField("component", "visibility"),
	}
}
