package launcher

import "fmt"

// FailurePolicy decides what happens when the backend cannot be spawned or
// attached to its process group.
type FailurePolicy int

const (
	// FailureIgnore logs the error and leaves the task idle. No callback
	// fires, so the UI never appears and nothing shuts the session down.
	FailureIgnore FailurePolicy = iota
	// FailureEscalate hands the error to Config.OnFailure.
	FailureEscalate
)

// ParseFailurePolicy parses "ignore" or "escalate". The empty string means
// ignore.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "ignore":
		return FailureIgnore, nil
	case "escalate":
		return FailureEscalate, nil
	default:
		return FailureIgnore, fmt.Errorf("unknown failure policy %q", s)
	}
}

func (p FailurePolicy) String() string {
	switch p {
	case FailureIgnore:
		return "ignore"
	case FailureEscalate:
		return "escalate"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}
