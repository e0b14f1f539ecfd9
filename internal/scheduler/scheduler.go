// Package scheduler provides the concurrency building blocks of the agent:
// a serial task queue, a restartable repeating timer, and a group of
// long-running services.
package scheduler

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Service is a named long-running function. Run should return when ctx is
// cancelled.
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler manages a set of services, running each in its own goroutine.
type Scheduler struct {
	services []Service
	logger   *logrus.Entry
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	errCh    chan error
}

// NewScheduler creates a new scheduler.
func NewScheduler(logger *logrus.Entry) *Scheduler {
	return &Scheduler{
		logger: logger.WithField("component", "scheduler"),
	}
}

// Add registers a service to be started when Start is called.
// It must be called before Start.
func (s *Scheduler) Add(name string, run func(ctx context.Context) error) {
	s.services = append(s.services, Service{Name: name, Run: run})
}

// Start launches a goroutine for every registered service. A service that
// returns an error is logged and reported on Errors; the others keep running.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, len(s.services))

	s.logger.WithField("service_count", len(s.services)).Info("starting scheduler")

	for _, svc := range s.services {
		s.wg.Add(1)
		go func(svc Service) {
			defer s.wg.Done()
			log := s.logger.WithField("service", svc.Name)
			log.Debug("service started")
			if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("service failed")
				s.errCh <- err
				return
			}
			log.Debug("service stopped")
		}(svc)
	}
}

// Errors receives the error of every service that failed before shutdown.
func (s *Scheduler) Errors() <-chan error {
	return s.errCh
}

// Stop cancels all running services and blocks until every goroutine has returned.
func (s *Scheduler) Stop() {
	s.logger.Debug("stopping scheduler")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Debug("scheduler stopped")
}
