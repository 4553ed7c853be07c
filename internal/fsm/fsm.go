package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle             State = "idle"
	StateRequestingAccess State = "requesting_access"
	StateRecording        State = "recording"
	StateStopping         State = "stopping"
	StateStopped          State = "stopped"
	StateFailed           State = "failed"
)

const (
	EventStart    Event = "start"
	EventGranted  Event = "granted"
	EventStop     Event = "stop"
	EventFinalize Event = "finalize"
	EventFail     Event = "fail"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRequestingAccess, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRequestingAccess:
		switch event {
		case EventGranted:
			return StateRecording, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateStopping, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventFinalize:
			return StateStopped, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopped, StateFailed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Terminal reports whether no further transitions are possible.
func Terminal(state State) bool {
	return state == StateStopped || state == StateFailed
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
