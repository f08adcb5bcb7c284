package session

import (
	"errors"
	"fmt"
)

// Step names one driver call of the session lifecycle.
type Step int

const (
	StepOpen Step = iota + 1
	StepInitCAN1
	StepInitCAN2
	StepStartCAN1
	StepStartCAN2
	StepReadBoardInfo
	StepTransmit
)

func (s Step) String() string {
	switch s {
	case StepOpen:
		return "open device"
	case StepInitCAN1:
		return "init CAN1"
	case StepInitCAN2:
		return "init CAN2"
	case StepStartCAN1:
		return "start CAN1"
	case StepStartCAN2:
		return "start CAN2"
	case StepReadBoardInfo:
		return "read board info"
	case StepTransmit:
		return "transmit"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Sentinels for errors.Is; a *StepError matches the sentinel of its step.
var (
	ErrOpenFailed    = &StepError{Step: StepOpen}
	ErrInitCAN1      = &StepError{Step: StepInitCAN1}
	ErrInitCAN2      = &StepError{Step: StepInitCAN2}
	ErrStartCAN1     = &StepError{Step: StepStartCAN1}
	ErrStartCAN2     = &StepError{Step: StepStartCAN2}
	ErrBoardInfo     = &StepError{Step: StepReadBoardInfo}
	ErrTransmit      = &StepError{Step: StepTransmit}
	ErrDeviceNotOpen = errors.New("device not open")
)

// StepError reports a driver call that returned a non-success status.
type StepError struct {
	Step    Step
	Channel uint32
	Status  int32
	msg     string
}

func (e *StepError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	switch e.Step {
	case StepOpen:
		return fmt.Sprintf("failed to open device (status %d)", e.Status)
	case StepInitCAN1, StepInitCAN2:
		return fmt.Sprintf("failed to %s on channel %d with new baud (status %d)", e.Step, e.Channel, e.Status)
	case StepStartCAN1, StepStartCAN2:
		return fmt.Sprintf("failed to %s on channel %d after reconnect (status %d)", e.Step, e.Channel, e.Status)
	default:
		return fmt.Sprintf("failed to %s (status %d)", e.Step, e.Status)
	}
}

// Is matches any StepError carrying the same step.
func (e *StepError) Is(target error) bool {
	var t *StepError
	if !errors.As(target, &t) {
		return false
	}
	return t.Step == e.Step
}

func stepError(step Step, channel uint32, status int32) *StepError {
	return &StepError{Step: step, Channel: channel, Status: status}
}
