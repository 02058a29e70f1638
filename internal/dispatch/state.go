package dispatch

// State is the execution state of one loop site
type State uint8

const (
	// StateInterpreted is where every site starts: no profile yet.
	StateInterpreted State = iota
	// StateProfiling: recorded executions are still below the compile threshold.
	StateProfiling
	// StateCompiling lasts for one synchronous compile call.
	StateCompiling
	// StateCompiled: the next encounter runs the cached artifact.
	StateCompiled
	// StatePermanentlyInterpreted: compiling this fingerprint failed once.
	StatePermanentlyInterpreted
)

var stateNames = [...]string{
	StateInterpreted:            "interpreted",
	StateProfiling:              "profiling",
	StateCompiling:              "compiling",
	StateCompiled:               "compiled",
	StatePermanentlyInterpreted: "permanently-interpreted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// legal lists the transitions the dispatcher may take
var legal = map[State][]State{
	StateInterpreted: {StateProfiling, StateCompiling, StateCompiled, StatePermanentlyInterpreted},
	StateProfiling:   {StateCompiling, StateCompiled, StatePermanentlyInterpreted},
	StateCompiling:   {StateCompiled, StatePermanentlyInterpreted},
	StateCompiled:    {StateCompiling, StatePermanentlyInterpreted},
}

// CanTransition reports whether from -> to is a transition of the state machine.
func CanTransition(from, to State) bool {
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}
