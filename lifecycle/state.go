package lifecycle

// State is a coarse lifecycle state. States only ever advance.
type State int32

const (
	Initialized State = iota
	Created
	Started
	Stopped
	Destroyed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "INITIALIZED"
	case Created:
		return "CREATED"
	case Started:
		return "STARTED"
	case Stopped:
		return "STOPPED"
	case Destroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// AtLeast reports whether s is target or a later state.
func (s State) AtLeast(target State) bool { return s >= target }

// Event is a lifecycle transition request.
type Event int32

const (
	EventCreate Event = iota + 1
	EventStart
	EventStop
	EventDestroy
)

func (e Event) String() string {
	switch e {
	case EventCreate:
		return "ON_CREATE"
	case EventStart:
		return "ON_START"
	case EventStop:
		return "ON_STOP"
	case EventDestroy:
		return "ON_DESTROY"
	default:
		return "ON_UNKNOWN"
	}
}

// Target returns the state e moves to.
func (e Event) Target() State {
	switch e {
	case EventCreate:
		return Created
	case EventStart:
		return Started
	case EventStop:
		return Stopped
	case EventDestroy:
		return Destroyed
	default:
		return Initialized
	}
}
