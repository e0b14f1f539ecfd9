package poller

import (
	"fmt"
	"time"
)

// State is the poller's view of the running build.
type State int

const (
	// Bootstrapping is the state before the first successful check.
	Bootstrapping State = iota
	// Checking marks a fetch in flight. Snapshots never settle on it; it is
	// only reported through Snapshot.Checking.
	Checking
	// Fresh means the fetched version equals the stored one, or the store
	// was just initialised with it.
	Fresh
	// Stale means the fetched version differs from the stored one and the
	// poller is waiting for the caller to purge.
	Stale
)

var stateNames = map[State]string{
	Bootstrapping: "bootstrapping",
	Checking:      "checking",
	Fresh:         "fresh",
	Stale:         "stale",
}

// AllStates lists every state, in declaration order.
var AllStates = []State{Bootstrapping, Checking, Fresh, Stale}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is an immutable copy of the poller's last settled state.
type Snapshot struct {
	State           State     `json:"state"`
	Checking        bool      `json:"checking"`
	Loading         bool      `json:"loading"`
	IsLatestVersion bool      `json:"is_latest_version"`
	LatestVersion   string    `json:"latest_version"`
	LastChecked     time.Time `json:"last_checked,omitempty"`
}

func stateLabels() []string {
	out := make([]string, len(AllStates))
	for i, s := range AllStates {
		out[i] = s.String()
	}
	return out
}
