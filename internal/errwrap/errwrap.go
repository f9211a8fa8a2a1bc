// Package errwrap contains the error helpers used throughout dflow.
package errwrap

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Wrapf annotates err with a formatted message and a stack trace. If err is
// nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Append can be used to safely append an error onto an existing one. If you
// pass in a nil error to append, the existing error will be returned
// unchanged. If the existing error is already nil, then the new error will be
// returned unchanged. This makes it easy to use Append as a safe `reterr +=
// err`, when you don't know if either is nil or not. It's the core of how the
// unreachable-target diagnostic accumulates one message per unsatisfied slot.
func Append(reterr, err error) error {
	if reterr == nil {
		return err
	}
	if err == nil {
		return reterr
	}
	return multierror.Append(reterr, err)
}
