package interview

import "fmt"

// Phase is the stage of answering the active question.
type Phase string

// Event drives phase transitions.
type Event string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseAwaiting   Phase = "awaiting_submission"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
)

const (
	EventStart       Event = "start"
	EventFinalized   Event = "finalized"
	EventSubmit      Event = "submit"
	EventScored      Event = "scored"
	EventScoreFailed Event = "score_failed"
	EventCompleted   Event = "completed"
	EventReset       Event = "reset"
)

// Transition applies one event to a phase. It is pure; the controller owns
// the authoritative phase value.
func Transition(current Phase, event Event) (Phase, error) {
	if event == EventReset {
		return PhaseIdle, nil
	}

	switch current {
	case PhaseIdle:
		switch event {
		case EventStart:
			return PhaseRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseRecording:
		switch event {
		case EventFinalized:
			return PhaseAwaiting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseAwaiting:
		switch event {
		case EventSubmit:
			return PhaseProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseProcessing:
		switch event {
		case EventScored:
			return PhaseIdle, nil
		case EventScoreFailed:
			return PhaseIdle, nil
		case EventCompleted:
			return PhaseCompleted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseCompleted:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown phase %q", current)
	}
}

func invalidTransition(phase Phase, event Event) error {
	return fmt.Errorf("%w: %s --(%s)", ErrInvalidTransition, phase, event)
}
