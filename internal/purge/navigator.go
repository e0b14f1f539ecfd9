package purge

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// CommandNavigator reloads the guarded client by running an external command,
// for example a service manager restart. OnReplaced runs after the command
// succeeds so the owner can tear down the session that asked for the reload.
type CommandNavigator struct {
	Command    []string
	OnReplaced func()
	logger     *logrus.Entry
}

var _ Navigator = (*CommandNavigator)(nil)

// NewCommandNavigator returns a navigator running command.
func NewCommandNavigator(command []string, onReplaced func(), logger *logrus.Entry) *CommandNavigator {
	return &CommandNavigator{
		Command:    command,
		OnReplaced: onReplaced,
		logger:     logger.WithField("component", "navigator"),
	}
}

func (n *CommandNavigator) Replace(ctx context.Context) error {
	if len(n.Command) == 0 {
		return errors.New("reload command is empty")
	}
	cmd := exec.CommandContext(ctx, n.Command[0], n.Command[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("running reload command %q: %w (output: %s)", n.Command[0], err, truncate(out, 512))
	}
	n.logger.WithField("command", n.Command[0]).Info("reload command completed")
	if n.OnReplaced != nil {
		n.OnReplaced()
	}
	return nil
}

// LogNavigator only records that a reload was requested. It suits hosts that
// watch the sentinel's state instead of being restarted by it.
type LogNavigator struct {
	OnReplaced func()
	logger     *logrus.Entry
}

var _ Navigator = (*LogNavigator)(nil)

// NewLogNavigator returns a navigator that logs and calls onReplaced.
func NewLogNavigator(onReplaced func(), logger *logrus.Entry) *LogNavigator {
	return &LogNavigator{OnReplaced: onReplaced, logger: logger.WithField("component", "navigator")}
}

func (n *LogNavigator) Replace(context.Context) error {
	n.logger.Warn("reload requested; reload mode is none, client must reload itself")
	if n.OnReplaced != nil {
		n.OnReplaced()
	}
	return nil
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context) error

func (f NavigatorFunc) Replace(ctx context.Context) error { return f(ctx) }

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
