package supervisor

// State is a supervisor lifecycle state.
type State int

// Supervisor states. Numeric values are exported as a metric.
const (
	StateIdle State = iota
	StateRunning
	StateSleeping
	StateCoolingDown
	StateRecoveringSession
	StateRecyclingSession
	StateStopped
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateRunning:           "running",
	StateSleeping:          "sleeping",
	StateCoolingDown:       "cooling_down",
	StateRecoveringSession: "recovering_session",
	StateRecyclingSession:  "recycling_session",
	StateStopped:           "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
