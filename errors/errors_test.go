package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestIs(t *testing.T) {
	cases := map[string]struct {
		kind *Error
		err  error
		want bool
	}{
		"root matches itself": {
			kind: ErrNotFound,
			err:  ErrNotFound,
			want: true,
		},
		"wrapped once": {
			kind: ErrNotFound,
			err:  Wrap(ErrNotFound, "operation 42"),
			want: true,
		},
		"wrapped twice": {
			kind: ErrState,
			err:  Wrap(Wrap(ErrState, "inner"), "outer"),
			want: true,
		},
		"different root": {
			kind: ErrNotFound,
			err:  Wrap(ErrDuplicate, "operation 42"),
			want: false,
		},
		"stdlib error": {
			kind: ErrNotFound,
			err:  stderrors.New("not found"),
			want: false,
		},
		"nil kind and nil error": {
			kind: nil,
			err:  nil,
			want: true,
		},
		"nil kind and non nil error": {
			kind: nil,
			err:  ErrNotFound,
			want: false,
		},
		"root and nil error": {
			kind: ErrNotFound,
			err:  nil,
			want: false,
		},
		"field error preserves the root": {
			kind: ErrAmount,
			err:  Field("Quantity", ErrAmount, "must be positive"),
			want: true,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := tc.kind.Is(tc.err); got != tc.want {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if err := Wrap(nil, "whatever"); err != nil {
		t.Fatalf("wrapping nil must return nil, got %+v", err)
	}
}

func TestWrapMessageChain(t *testing.T) {
	err := Wrap(Wrap(ErrDuplicate, "signer already voted"), "approve")
	const want = "approve: signer already voted: duplicate"
	if got := err.Error(); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestWrapAttachesStackTraceOnce(t *testing.T) {
	inner := Wrap(ErrState, "inner")
	outer := Wrap(inner, "outer")

	if stackTrace(inner) == nil {
		t.Fatal("inner wrap must attach a stack trace")
	}
	// The outer wrap must reuse the existing trace instead of
	// shadowing it with a useless one from the outer frame.
	if fmt.Sprintf("%v", stackTrace(outer)) != fmt.Sprintf("%v", stackTrace(inner)) {
		t.Fatal("outer wrap must not attach a second stack trace")
	}
}

func TestRegisterPanicsOnCodeReuse(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("reusing an error code must panic")
		}
	}()
	Register(ErrNotFound.Code(), "conflicting")
}

func TestAppend(t *testing.T) {
	cases := map[string]struct {
		errs     []error
		wantNil  bool
		wantMsgs int
	}{
		"all nil": {
			errs:    []error{nil, nil},
			wantNil: true,
		},
		"single error passes through": {
			errs:     []error{nil, ErrEmpty},
			wantMsgs: 1,
		},
		"multiple are clubbed": {
			errs:     []error{ErrEmpty, nil, ErrAmount},
			wantMsgs: 2,
		},
		"nested append is flattened": {
			errs:     []error{Append(ErrEmpty, ErrAmount), ErrCurrency},
			wantMsgs: 3,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := Append(tc.errs...)
			if tc.wantNil {
				if err != nil {
					t.Fatalf("want nil, got %+v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("want an error, got nil")
			}
			if u, ok := err.(unpacker); ok {
				if n := len(u.Unpack()); n != tc.wantMsgs {
					t.Fatalf("want %d clubbed errors, got %d", tc.wantMsgs, n)
				}
			} else if tc.wantMsgs != 1 {
				t.Fatalf("want %d clubbed errors, got a plain error", tc.wantMsgs)
			}
		})
	}
}

func TestAppendSingleKeepsIdentity(t *testing.T) {
	err := Append(nil, Wrap(ErrExpired, "deadline passed"))
	if !ErrExpired.Is(err) {
		t.Fatalf("single clubbed error must keep its root: %+v", err)
	}
}

func TestFieldErrors(t *testing.T) {
	err := Append(
		Field("Quantity", ErrAmount, "must be positive"),
		Field("Reference", ErrEmpty, ""),
		Field("Quantity", ErrCurrency, "unknown ticker"),
	)

	if got := FieldErrors(err, "Quantity"); len(got) != 2 {
		t.Fatalf("want 2 errors for Quantity, got %d: %v", len(got), got)
	}
	if got := FieldErrors(err, "Reference"); len(got) != 1 {
		t.Fatalf("want 1 error for Reference, got %d: %v", len(got), got)
	}
	if got := FieldErrors(err, "Destination"); got != nil {
		t.Fatalf("want no errors for Destination, got %v", got)
	}
	if got := FieldErrors(nil, "Quantity"); got != nil {
		t.Fatalf("want no errors for nil, got %v", got)
	}
}

func TestRecover(t *testing.T) {
	fail := func() (err error) {
		defer Recover(&err)
		panic("broken pipe")
	}
	err := fail()
	if !ErrPanic.Is(err) {
		t.Fatalf("want a panic error, got %+v", err)
	}
}
