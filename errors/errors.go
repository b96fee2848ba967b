package errors

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized is returned whenever a request lacks sufficient
	// authorization.
	ErrUnauthorized = Register(2, "unauthorized")

	// ErrNotFound is returned when an entity cannot be found in the
	// store (unknown operation, signer or record).
	ErrNotFound = Register(3, "not found")

	// ErrInput stands for general input problems.
	ErrInput = Register(4, "invalid input")

	// ErrState is returned when an action is attempted outside of a
	// status that allows it, for example approving an operation that was
	// already executed.
	ErrState = Register(5, "invalid state")

	// ErrDuplicate is returned when a record with the same unique key
	// already exists. A second approval from the same signer is the most
	// prominent case.
	ErrDuplicate = Register(6, "duplicate")

	// ErrType is returned whenever the type is not what was expected.
	ErrType = Register(7, "invalid type")

	// ErrImmutable is returned when something that must never change
	// after creation is being modified.
	ErrImmutable = Register(8, "cannot be modified")

	// ErrEmpty is returned when a value fails a not-empty assertion.
	ErrEmpty = Register(9, "value is empty")

	// ErrOverflow is returned when a computation cannot be completed
	// because the result value exceeds the type.
	ErrOverflow = Register(10, "value overflow")

	// ErrAmount stands for an invalid amount of currency.
	ErrAmount = Register(11, "invalid amount")

	// ErrExpired is returned when the deadline of a pending operation
	// has passed.
	ErrExpired = Register(12, "expired")

	// ErrSigning is returned when a signer capability cannot produce a
	// partial signature. This failure is recoverable, the caller may
	// retry the single approval.
	ErrSigning = Register(13, "signing failed")

	// ErrSubmission is returned when the ledger network explicitly
	// rejected a multi-signed transaction. This failure is terminal for
	// the operation.
	ErrSubmission = Register(14, "submission rejected")

	// ErrIndeterminate is returned when a submission produced no
	// definitive network result. The operation must not be treated as
	// either success or failure and requires manual reconciliation.
	ErrIndeterminate = Register(15, "submission result indeterminate")

	// ErrInvariant is returned when an action would break a bookkeeping
	// invariant, for example a mint exceeding the collateral balance.
	ErrInvariant = Register(16, "invariant violation")

	// ErrDatabase is returned when the underlying storage fails.
	ErrDatabase = Register(17, "database error")

	// ErrIteratorDone is returned by iterators when the range is
	// exhausted.
	ErrIteratorDone = Register(18, "iterator done")

	// ErrCurrency is returned whenever a currency ticker is invalid or
	// two amounts of different currencies are combined.
	ErrCurrency = Register(19, "invalid currency")

	// ErrPanic is only set when we recover from a panic, so we know to
	// redact potentially sensitive system info.
	ErrPanic = Register(111222, "panic")
)

// Register returns an error instance that should be used as the base for
// creating error instances during runtime.
//
// Popular root errors are declared in this package, but extensions may
// want to declare custom codes. This function ensures that no error code
// is used twice. Attempt to reuse an error code results in panic.
//
// Use this function only during a program startup phase.
func Register(code uint32, description string) *Error {
	if e, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered: %q", code, e.desc))
	}
	err := &Error{
		code: code,
		desc: description,
	}
	usedCodes[err.code] = err
	return err
}

// usedCodes is keeping track of used codes to ensure their uniqueness. No
// two error instances should share the same error code.
var usedCodes = map[uint32]*Error{
	1: nil, // Error code 1 is restricted for wrapped non-custody errors.
}

// Error represents a root error.
//
// The engine is using root errors to categorize issues. Each instance
// created during the runtime should wrap one of the declared root errors.
// This allows error tests and returning all errors to the client in a
// safe manner.
//
// If an extension has to declare a custom root error, always use the
// Register function to ensure error code uniqueness.
type Error struct {
	code uint32
	desc string
}

func (e Error) Error() string {
	return e.desc
}

// Code returns the numeric code of this root error.
func (e Error) Code() uint32 {
	return e.code
}

// New returns a new error. The returned instance has the root cause set
// to this error. Below two lines are equal:
//   e.New("my description")
//   Wrap(e, "my description")
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

// Newf is basically New with formatting capabilities.
func (e *Error) Newf(description string, args ...interface{}) error {
	return e.New(fmt.Sprintf(description, args...))
}

// Is checks if the given error instance is of this kind. This involves
// unwrapping the error using the Cause method if available.
func (kind *Error) Is(err error) bool {
	// Reflect usage is necessary to correctly compare with a nil
	// implementation of an error.
	if kind == nil {
		if err == nil {
			return true
		}
		return reflect.ValueOf(err).IsNil()
	}

	for {
		if err == kind {
			return true
		}

		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return false
		}
	}
}

// Wrap extends the given error with additional information.
//
// If err is nil this returns nil, avoiding the need for an if statement
// when wrapping an error returned at the end of a function.
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}

	// If this error does not carry the stacktrace information yet,
	// attach one. This should be done only once per error at the lowest
	// frame possible (most inner wrap).
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}

	return &wrappedError{
		parent: err,
		msg:    description,
	}
}

// Wrapf extends the given error with additional information. It works
// like the Wrap function with the additional functionality of formatting
// the input as specified.
func Wrapf(err error, format string, args ...interface{}) error {
	desc := fmt.Sprintf(format, args...)
	return Wrap(err, desc)
}

type wrappedError struct {
	// This error layer description.
	msg string
	// The underlying error that triggered this one.
	parent error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.parent.Error())
}

func (e *wrappedError) Cause() error {
	return e.parent
}

// Recover captures a panic and stops its propagation. If a panic happens
// it is transformed into an ErrPanic instance and assigned to the given
// error. Call this function using defer in order to work as expected.
func Recover(err *error) {
	if r := recover(); r != nil {
		*err = Wrapf(ErrPanic, "%v", r)
	}
}

// stackTrace returns the first found stack trace frames of this error or
// any wrapped error, or nil if no stack trace information is available.
func stackTrace(err error) errors.StackTrace {
	for {
		if err == nil {
			return nil
		}
		if st, ok := err.(stackTracer); ok {
			return st.StackTrace()
		}
		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return nil
		}
	}
}

func isNilErr(err error) bool {
	// Reflect usage is necessary to correctly compare with a nil
	// implementation of an error.
	if err == nil {
		return true
	}
	if reflect.ValueOf(err).Kind() == reflect.Ptr {
		return reflect.ValueOf(err).IsNil()
	}
	return false
}

// stackTracer from pkg/errors.
type stackTracer interface {
	error
	StackTrace() errors.StackTrace
}

// causer is an interface implemented by an error that supports wrapping.
// Use it to test if an error wraps another error instance.
type causer interface {
	Cause() error
}

// unpacker is an interface implemented by an error that can be unpacked
// into multiple errors.
type unpacker interface {
	Unpack() []error
}
