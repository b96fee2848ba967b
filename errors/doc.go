/*
Package errors implements the coded error set used across the custody
engine.

Each error returned by the engine wraps one of the root errors declared
here. Root errors carry a unique numeric code so that the transport layer
can map failures without string matching, and tests can assert on the
error kind with the Is method:

	if errors.ErrDuplicate.Is(err) {
		...
	}

Create errors by wrapping a root error with context:

	errors.Wrapf(errors.ErrNotFound, "operation %d", id)

A stack trace is attached to the error the first time it is wrapped.
*/
package errors
