// Package visibility turns host events into focus and blur calls on a poller.
package visibility

import (
	"errors"
	"fmt"
	"strings"
)

// Target receives focus changes.
type Target interface {
	Focus()
	Blur()
}

// States accepted by Apply.
const (
	Visible = "visible"
	Hidden  = "hidden"
)

// ErrUnknownState is returned by Apply for anything other than Visible or
// Hidden.
var ErrUnknownState = errors.New("unknown visibility state")

// Apply focuses target for "visible" and blurs it for "hidden".
func Apply(target Target, state string) error {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case Visible:
		target.Focus()
	case Hidden:
		target.Blur()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownState, state)
	}
	return nil
}
