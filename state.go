package ctxsync

// State is the engine lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateIdentifying
	StateLoading
	StateReady
	StateIdle
	StateDirty
	StateClearing
	StateFlushing
	StateTerminated
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateIdentifying:   "identifying",
	StateLoading:       "loading",
	StateReady:         "ready",
	StateIdle:          "idle",
	StateDirty:         "dirty",
	StateClearing:      "clearing",
	StateFlushing:      "flushing",
	StateTerminated:    "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// active reports whether appends should mark the working set dirty.
func (s State) active() bool {
	return s == StateReady || s == StateIdle || s == StateDirty
}
