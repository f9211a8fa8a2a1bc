package dflow

import "errors"

// Run-time error codes returned by Closure.ErrorCode / Closure.Get. Zero
// always means success.
const (
	CodeSuccess            = 0
	CodeOperatorFailed     = 1
	CodeEssentialEmpty     = 2
	CodeUnreachable        = 3
	CodeMutabilityConflict = 4
)

// Wiring (build-time) errors.
var (
	ErrDuplicateProducer = errors.New("dflow: slot already has a producer")
	ErrUnknownSlot       = errors.New("dflow: reference to undeclared slot")
	ErrSetupFailed       = errors.New("dflow: operator setup failed")
	ErrTypeConflict      = errors.New("dflow: conflicting type declarations on slot")
)

// Activation (start-of-run) errors.
var (
	ErrMutabilityConflict = errors.New("dflow: mutable and concurrent dependency conflict on slot")
	ErrNoProducer         = errors.New("dflow: slot has no producer and was not preset")
)

// Runtime errors.
var (
	ErrOperatorFailed = errors.New("dflow: operator returned a non-zero result")
	ErrEssentialEmpty = errors.New("dflow: essential-level-2 dependency was empty at invoke")
	ErrUnreachable     = errors.New("dflow: requested slots could not be satisfied")
)

// ErrDoubleRelease is a programming-error panic value: releasing (or
// cancelling after releasing) the same Committer twice.
var ErrDoubleRelease = errors.New("dflow: committer already released or cancelled")
