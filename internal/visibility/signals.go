package visibility

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
)

// SignalSource maps process signals onto a Target. Hosts that cannot reach
// the HTTP endpoint use it to suspend and resume polling.
type SignalSource struct {
	target Target
	blur   os.Signal
	focus  os.Signal
	logger *logrus.Entry
}

// Run listens for signals until ctx is done.
func (s *SignalSource) Run(ctx context.Context) error {
	if s.blur == nil || s.focus == nil {
		s.logger.Debug("visibility signals not supported on this platform")
		<-ctx.Done()
		return nil
	}

	ch := make(chan os.Signal, 4)
	signal.Notify(ch, s.blur, s.focus)
	defer signal.Stop(ch)

	s.logger.WithFields(logrus.Fields{
		"blur":  s.blur.String(),
		"focus": s.focus.String(),
	}).Info("listening for visibility signals")

	s.loop(ctx, ch)
	return nil
}

func (s *SignalSource) loop(ctx context.Context, ch <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			switch sig {
			case s.blur:
				s.logger.Info("blur signal received")
				s.target.Blur()
			case s.focus:
				s.logger.Info("focus signal received")
				s.target.Focus()
			}
		}
	}
}
