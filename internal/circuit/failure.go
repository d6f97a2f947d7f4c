package circuit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrVerification matches every [*VerifyError].
	ErrVerification = errors.New("verification failed")

	// ErrUndersized matches a [*VerifyError] caused by a witness that does not
	// fit the configured capacity rather than by a violated constraint.
	ErrUndersized = errors.New("capacity configuration too small")

	// ErrNoWitnessSource is returned by [TestBuilder.Run] when neither a test
	// context nor a block was provided.
	ErrNoWitnessSource = errors.New("no test context or block to build a witness from")
)

// Kind classifies a failure.
type Kind uint8

const (
	// KindConstraint is a gate that did not evaluate to zero.
	KindConstraint Kind = iota
	// KindLookup is a row whose values are missing from the table it looks up.
	KindLookup
	// KindCapacity is a table whose witness needs more rows than configured.
	KindCapacity
)

var kindNames = [...]string{
	KindConstraint: "constraint",
	KindLookup:     "lookup",
	KindCapacity:   "capacity",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("kind(%d)", k)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown failure kind %d", k)
	}

	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}

	return fmt.Errorf("unknown failure kind %q", text)
}

// Failure locates a single check that did not hold.
type Failure struct {
	Stage  string `json:"stage"`
	Kind   Kind   `json:"kind"`
	Gate   string `json:"gate"`
	Row    int    `json:"row"`
	Detail string `json:"detail,omitempty"`
}

func (f Failure) String() string {
	s := fmt.Sprintf("%s: %s %q failed at row %d", f.Stage, f.Kind, f.Gate, f.Row)
	if f.Detail != "" {
		s += ": " + f.Detail
	}

	return s
}

// VerifyError is returned when a stage reports failures. Failures are in row
// order and all belong to Stage.
//
//	var vErr *circuit.VerifyError
//	if errors.As(err, &vErr) {
//	    for _, f := range vErr.Failures { ... }
//	}
//
// errors.Is(err, ErrUndersized) reports whether the stage was rejected for
// capacity before its constraints were checked.
type VerifyError struct {
	Stage    string
	Failures []Failure
}

func (e *VerifyError) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s stage: %d failure(s)", e.Stage, len(e.Failures))

	const shown = 3
	for i, f := range e.Failures {
		if i == shown {
			fmt.Fprintf(&sb, "; and %d more", len(e.Failures)-shown)
			break
		}

		sb.WriteString("; ")
		sb.WriteString(f.String())
	}

	return sb.String()
}

// Undersized reports whether every failure is a capacity failure.
func (e *VerifyError) Undersized() bool {
	if len(e.Failures) == 0 {
		return false
	}

	for _, f := range e.Failures {
		if f.Kind != KindCapacity {
			return false
		}
	}

	return true
}

// Is matches ErrVerification, and ErrUndersized when [VerifyError.Undersized].
func (e *VerifyError) Is(target error) bool {
	switch target {
	case ErrVerification:
		return true
	case ErrUndersized:
		return e.Undersized()
	default:
		return false
	}
}
