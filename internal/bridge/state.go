package bridge

// State names the phases a request moves through. Transitions only move
// forward; any failure jumps straight to StateReleased after cleanup.
type State int

const (
	StateIdle State = iota
	StateRegistered
	StateFolded
	StateScriptRunning
	StateUnfolded
	StateExtracted
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRegistered:
		return "registered"
	case StateFolded:
		return "folded"
	case StateScriptRunning:
		return "script-running"
	case StateUnfolded:
		return "unfolded"
	case StateExtracted:
		return "extracted"
	case StateReleased:
		return "released"
	}
	return "unknown"
}

// advance moves the request forward, logging the transition.
func (r *run) advance(next State) {
	tracef("run %s: %s -> %s", r.id, r.state, next)
	r.state = next
}
