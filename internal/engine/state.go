package engine

// State of the daemon's single reconciliation pipeline.
type State int32

const (
	Idle State = iota
	Validating
	Reconciling
	Applying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Reconciling:
		return "reconciling"
	case Applying:
		return "applying"
	}
	return "unknown"
}
