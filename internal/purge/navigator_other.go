//go:build !unix

package purge

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ExecNavigator is unavailable on this platform; use the command reload mode.
type ExecNavigator struct{}

// NewExecNavigator reports that re-exec is unsupported here.
func NewExecNavigator(func(), *logrus.Entry) (*ExecNavigator, error) {
	return nil, errors.New("exec reload mode is not supported on this platform")
}

func (n *ExecNavigator) Replace(context.Context) error {
	return errors.New("exec reload mode is not supported on this platform")
}
