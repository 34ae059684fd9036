package supervisor

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
)

var (
	// ErrDisconnected is returned by Handle.RequestUpdate once the owning
	// registry has been shut down or abandoned. It is informational.
	ErrDisconnected = errors.New("service disconnected from supervisor")
	// ErrDuplicateService is the panic value of Register for an active name.
	ErrDuplicateService = errors.New("service must have a unique name")
	// ErrRegistryClosed is the panic value of using a registry after Shutdown.
	ErrRegistryClosed = errors.New("registry already shut down")
	// ErrNoReport is the failure recorded for a task which returned
	// normally without its service ever reporting.
	ErrNoReport = errors.New("task ended without a report")
)

// ProtocolViolationError is the panic value raised when the handle or guard
// contract was broken, e.g. a Guard closed without ever being resolved.
type ProtocolViolationError struct {
	Name   string
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("supervisor protocol violation: service %q: %s", e.Name, e.Reason)
}

// ShutdownJoinError is the panic value of Registry.Shutdown when one or more
// service tasks ended in a panic which no Report accounted for, or ended
// without a Report at all (ErrNoReport). NextEvent raises it too for the
// latter, as soon as such a task is observed.
type ShutdownJoinError struct {
	Failures map[string]error
}

func (e *ShutdownJoinError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Failures[name].Error())
	}
	return fmt.Sprintf("shutdown: %d service task(s) failed: %s", len(names), strings.Join(parts, "; "))
}

func (e *ShutdownJoinError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// PanicError wraps a value recovered from a panicking goroutine.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
