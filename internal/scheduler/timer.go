package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Timer is a restartable repeating timer. At most one underlying ticker is
// alive at any time: Start stops the previous one before creating the next.
type Timer struct {
	name   string
	clock  clockwork.Clock
	logger *logrus.Entry

	mu     sync.Mutex
	ticker clockwork.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewTimer creates a stopped timer. A nil clock uses the real clock.
func NewTimer(name string, clock clockwork.Clock, logger *logrus.Entry) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{
		name:   name,
		clock:  clock,
		logger: logger.WithField("timer", name),
	}
}

// Start begins calling fn every interval, replacing any running schedule.
// The first call happens one interval after Start.
func (t *Timer) Start(interval time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	ticker := t.clock.NewTicker(interval)
	stop := make(chan struct{})
	t.ticker = ticker
	t.stop = stop

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				select {
				case <-stop:
					return
				default:
				}
				fn()
			}
		}
	}()

	t.logger.WithField("interval", interval).Debug("timer started")
}

// Stop cancels the running schedule, if any, and waits for its goroutine to
// exit. fn must not call Stop or Start.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.stop)
	t.ticker = nil
	t.stop = nil
	t.wg.Wait()
	t.logger.Debug("timer stopped")
}

// Active reports whether a schedule is running.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticker != nil
}
