//go:build unix

package purge

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"
)

// ExecNavigator replaces the running process image with a fresh copy of the
// same executable and arguments. On success Replace never returns.
type ExecNavigator struct {
	Path string
	Args []string
	// BeforeExec runs right before the exec, typically to close stores.
	BeforeExec func()
	logger     *logrus.Entry
}

var _ Navigator = (*ExecNavigator)(nil)

// NewExecNavigator returns a navigator that re-executes the current binary.
func NewExecNavigator(beforeExec func(), logger *logrus.Entry) (*ExecNavigator, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving executable: %w", err)
	}
	return &ExecNavigator{
		Path:       path,
		Args:       os.Args,
		BeforeExec: beforeExec,
		logger:     logger.WithField("component", "navigator"),
	}, nil
}

func (n *ExecNavigator) Replace(_ context.Context) error {
	n.logger.WithField("path", n.Path).Info("re-executing to load the new version")
	if n.BeforeExec != nil {
		n.BeforeExec()
	}
	if err := syscall.Exec(n.Path, n.Args, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", n.Path, err)
	}
	return nil
}
