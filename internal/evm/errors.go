package evm

import (
	"errors"
	"fmt"
)

// Error variables for context construction and tracing.
var (
	ErrNoCode          = errors.New("account has no code")
	ErrNoAccounts      = errors.New("test context needs at least two accounts")
	ErrCalldataTooLong = errors.New("calldata exceeds limit")
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrStackOverflow   = errors.New("stack overflow")
	ErrInvalidOpcode   = errors.New("invalid opcode")
	ErrMemoryLimit     = errors.New("memory access exceeds limit")
	ErrStepLimit       = errors.New("step limit reached")
)

// ExecError is returned by [BuildBlock] when execution aborts.
//
// Use [errors.Is] against the sentinels above to classify it:
//
//	var execErr *evm.ExecError
//	if errors.As(err, &execErr) {
//	    fmt.Printf("aborted at pc=%d (%s)\n", execErr.PC, execErr.Op)
//	}
type ExecError struct {
	PC  uint64
	Op  OpCode
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%v at pc=%d (%s)", e.Err, e.PC, e.Op)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
