package d4

import (
	"errors"
	"fmt"
)

// ErrMissingInput is returned when a step runs before the step producing
// its input.
var ErrMissingInput = errors.New("d4: missing step input")

// Step identifies a pipeline step.
type Step uint8

const (
	StepIndex Step = iota
	StepSignatures
	StepExpand
	StepLocalDomains
	StepStrongDomains
	numSteps
)

var stepNames = [numSteps]string{"eqs", "signatures", "expand", "local-domains", "strong-domains"}

// Steps lists all steps in execution order.
func Steps() []Step {
	return []Step{StepIndex, StepSignatures, StepExpand, StepLocalDomains, StepStrongDomains}
}

func (s Step) String() string {
	if s < numSteps {
		return stepNames[s]
	}
	return fmt.Sprintf("step(%d)", uint8(s))
}

// ParseStep returns the step with the given name.
func ParseStep(name string) (Step, error) {
	for i, n := range stepNames {
		if n == name {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("d4: unknown step %q", name)
}

// StepError reports the step a pipeline failure happened in.
//
// The original underlying error can be accessed via errors.Unwrap.
type StepError struct {
	Step  Step
	cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.cause)
}

func (e *StepError) Unwrap() error { return e.cause }

func stepError(step Step, err error) error {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	return &StepError{Step: step, cause: err}
}
