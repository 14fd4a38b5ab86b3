// Package xerrors records where an error was created or wrapped so the
// logger can print file:line links for each step of the chain.
//
// Errors from this package work with errors.Is and errors.As; the HTTP
// layer matches sentinels such as content.ErrNotFound through them.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked is a leaf error with the goroutine stack at creation.
type stacked struct {
	err error
	pcs []uintptr
}

func (e *stacked) Error() string       { return e.err.Error() }
func (e *stacked) Unwrap() error       { return e.err }
func (e *stacked) StackPCs() []uintptr { return e.pcs }

// wrapped adds context to err and remembers the single wrapping call site.
type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (e *wrapped) Error() string { return e.msg + ": " + e.err.Error() }
func (e *wrapped) Unwrap() error { return e.err }
func (e *wrapped) PC() uintptr   { return e.pc }

// New returns an error with msg and the caller's stack.
func New(msg string) error { return &stacked{err: errors.New(msg), pcs: stackAt(3)} }

// Newf is New with fmt.Errorf formatting, so %w works.
func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stackAt(3)}
}

// Wrap prefixes err with msg. A nil err stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: pcAt(3)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: pcAt(3)}
}

// skip counts runtime.Callers itself as 0.
func stackAt(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	return pcs[:runtime.Callers(skip, pcs)]
}

func pcAt(skip int) uintptr {
	var pc [1]uintptr
	if runtime.Callers(skip, pc[:]) == 0 {
		return 0
	}
	return pc[0]
}
