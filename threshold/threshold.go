// Package threshold implements the comparison constraints used throughout the
// discovery pipeline: expansion thresholds, block drop minimums, and domain
// overlap constraints.
//
// A constraint is written as an operator followed by a value, for example
// "GT0.5" (strictly greater than 0.5) or "GEQ0.25" (at least 0.25).
package threshold

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid is returned when a constraint string cannot be parsed.
var ErrInvalid = errors.New("threshold: invalid constraint")

// Op is the comparison operator of a Threshold.
type Op uint8

const (
	// GreaterThan accepts values strictly above the bound.
	GreaterThan Op = iota
	// GreaterOrEqual accepts values at or above the bound.
	GreaterOrEqual
)

func (o Op) String() string {
	if o == GreaterOrEqual {
		return "GEQ"
	}
	return "GT"
}

// Threshold is an immutable lower-bound constraint on a ratio.
type Threshold struct {
	op    Op
	value float64
}

// GT returns the constraint "v > value".
func GT(value float64) Threshold {
	return Threshold{op: GreaterThan, value: value}
}

// GEQ returns the constraint "v >= value".
func GEQ(value float64) Threshold {
	return Threshold{op: GreaterOrEqual, value: value}
}

// Op returns the comparison operator.
func (t Threshold) Op() Op { return t.op }

// Value returns the bound.
func (t Threshold) Value() float64 { return t.value }

// IsSatisfied reports whether v meets the constraint.
func (t Threshold) IsSatisfied(v float64) bool {
	if t.op == GreaterOrEqual {
		return v >= t.value
	}
	return v > t.value
}

// DecreasedBy returns a looser constraint whose bound is lowered by delta.
// The bound never drops below zero, so a decreased constraint is never
// stricter than the original one.
func (t Threshold) DecreasedBy(delta float64) Threshold {
	if delta <= 0 {
		return t
	}
	return Threshold{op: t.op, value: max(0, t.value-delta)}
}

// String returns the parseable form of the constraint.
func (t Threshold) String() string {
	return t.op.String() + strconv.FormatFloat(t.value, 'f', -1, 64)
}

// Parse reads a constraint such as "GT0.5", "GEQ0.1" or "gt 0.5".
// A bare number is read as GT.
func Parse(text string) (Threshold, error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	op := GreaterThan
	switch {
	case strings.HasPrefix(s, "GEQ"):
		op, s = GreaterOrEqual, s[3:]
	case strings.HasPrefix(s, "GT"):
		s = s[2:]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("%w: %q", ErrInvalid, text)
	}
	if v < 0 {
		return Threshold{}, fmt.Errorf("%w: negative bound in %q", ErrInvalid, text)
	}
	return Threshold{op: op, value: v}, nil
}

// MustParse is Parse that panics on error. Intended for constants and tests.
func MustParse(text string) Threshold {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

// MarshalText implements encoding.TextMarshaler.
func (t Threshold) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Threshold) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
