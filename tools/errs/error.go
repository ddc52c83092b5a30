package errs

import (
	pkgerrors "github.com/pkg/errors"
)

// New builds a plain error with optional key/value detail, stack attached.
func New(msg string, kv ...any) error {
	return pkgerrors.New(toString(msg, kv))
}

// Wrap attaches a stack to err once; nil stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

// WrapMsg annotates err with a message and key/value detail.
func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, toString(msg, kv))
}

// Unwrap walks to the innermost error.
func Unwrap(err error) error {
	for err != nil {
		unwrap, ok := err.(interface {
			error
			Unwrap() error
		})
		if !ok {
			break
		}
		next := unwrap.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
	return err
}
