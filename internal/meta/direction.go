package meta

import goversion "github.com/hashicorp/go-version"

// Directions reported by Direction.
const (
	DirectionUpgrade   = "upgrade"
	DirectionDowngrade = "downgrade"
	DirectionSame      = "same"
	DirectionUnknown   = "unknown"
)

// Direction describes how to relates to from when both parse as versions.
// Markers are opaque to the poller, so this is informational only and never
// drives a transition.
func Direction(from, to string) string {
	a, err := goversion.NewVersion(from)
	if err != nil {
		return DirectionUnknown
	}
	b, err := goversion.NewVersion(to)
	if err != nil {
		return DirectionUnknown
	}
	switch {
	case b.GreaterThan(a):
		return DirectionUpgrade
	case b.LessThan(a):
		return DirectionDowngrade
	default:
		return DirectionSame
	}
}
