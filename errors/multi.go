package errors

import "strings"

// Append clubs together all provided errors. Nil values are ignored.
//
// If given a single error, that error instance is returned unchanged,
// so that the result can still be tested with the Is method of its root.
func Append(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if isNilErr(err) {
			continue
		}
		if u, ok := err.(*appendedErrors); ok {
			nonNil = append(nonNil, u.errs...)
		} else {
			nonNil = append(nonNil, err)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &appendedErrors{errs: nonNil}
	}
}

type appendedErrors struct {
	errs []error
}

func (errs *appendedErrors) Unpack() []error {
	return errs.errs
}

func (errs *appendedErrors) Error() string {
	switch len(errs.errs) {
	case 0:
		return ""
	case 1:
		return errs.errs[0].Error()
	default:
		msgs := make([]string, len(errs.errs))
		for i, err := range errs.errs {
			msgs[i] = err.Error()
		}
		return strings.Join(msgs, "; ")
	}
}
