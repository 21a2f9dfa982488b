package renderer

import (
	"errors"
	"fmt"
)

// Kind classifies renderer errors by the component that failed.
type Kind int

const (
	DeviceInitError Kind = iota + 1
	ResourceCreateError
	PipelineCreateError
	PresentError
)

func (k Kind) String() string {
	switch k {
	case DeviceInitError:
		return "device init"
	case ResourceCreateError:
		return "resource create"
	case PipelineCreateError:
		return "pipeline create"
	case PresentError:
		return "present"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	// ErrNoSuitableAdapter is returned when no hardware adapter supports
	// the required feature level.
	ErrNoSuitableAdapter = errors.New("no suitable adapter")

	// ErrInvalidState is returned when frame recording steps are called
	// out of order.
	ErrInvalidState = errors.New("invalid frame state transition")

	// ErrClosed is returned by a renderer which was closed.
	ErrClosed = errors.New("renderer is closed")
)

// Error is a failure of one renderer step.
type Error struct {
	Kind Kind
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, step string, err error) error {
	return &Error{Kind: kind, Step: step, Err: err}
}

// KindOf returns the kind of the first Error in err's chain, or zero.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}
