package core

import "errors"

var (
	// ErrSourceUnavailable is returned when the uploaded object cannot be
	// opened. It is terminal for the invocation.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedFile is returned when the object is not readable as
	// delimited text with a header row. Retrying fails the same way.
	ErrMalformedFile = errors.New("malformed csv file")

	// ErrOutsideUploadPrefix is returned for objects that do not live under
	// the upload namespace, including the processed copies.
	ErrOutsideUploadPrefix = errors.New("object outside upload namespace")

	// ErrEnqueue aborts a parse when a unit of work cannot be sent.
	ErrEnqueue = errors.New("enqueue failed")

	// ErrRelocate is returned when the copy or the delete of the source
	// object fails after the stream was consumed.
	ErrRelocate = errors.New("relocate failed")

	// ErrDecodeUnit marks a queued body that is not a unit of work.
	ErrDecodeUnit = errors.New("decode unit")

	// ErrProductExists is returned by stores when the generated identity is
	// already taken.
	ErrProductExists = errors.New("product already exists")
)

// RejectionError carries the reason a row or unit failed validation.
// Rejections are not failures: the row is logged and dropped.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

func reject(reason string) error {
	return &RejectionError{Reason: reason}
}

// IsRejection reports whether err is a validation rejection and returns its reason.
func IsRejection(err error) (string, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
