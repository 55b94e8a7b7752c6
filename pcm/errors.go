package pcm

import (
	"errors"
	"fmt"
	"io"
)

// Error kinds; every error returned by the package matches exactly one of
// them through errors.Is.
var (
	// ErrFormat reports a missing FLAC signature or malformed metadata.
	ErrFormat = errors.New("pcm: invalid FLAC format")
	// ErrDecode reports a corrupt audio frame or a checksum mismatch.
	ErrDecode = errors.New("pcm: corrupt audio data")
	// ErrTruncated reports a stream which ends before its declared length.
	ErrTruncated = errors.New("pcm: truncated stream")
	// ErrValidation reports an invalid buffer, metadata or option.
	ErrValidation = errors.New("pcm: invalid argument")
	// ErrIO reports a failure of the underlying reader or writer.
	ErrIO = errors.New("pcm: i/o failure")
	// ErrClosed reports use of a closed decoder.
	ErrClosed = errors.New("pcm: decoder closed")
)

// Error records a failed operation.
type Error struct {
	// Kind is one of the package error values, such as ErrDecode.
	Kind error
	// Op names the failed operation: "open", "read", "write", ...
	Op string
	// Offset is the byte offset in the stream at which the operation failed;
	// -1 if unknown.
	Offset int64
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Op)
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func validationError(op string, err error) error {
	return &Error{Kind: ErrValidation, Op: op, Offset: -1, Err: err}
}

// ioError marks failures of the underlying reader or writer,
// to tell them apart from malformed data.
type ioError struct {
	offset int64
	err    error
}

func (e *ioError) Error() string {
	return e.err.Error()
}

func (e *ioError) Unwrap() error {
	return e.err
}

// classify returns err as an *Error of the kind matching its cause.
// Errors which are neither i/o failures nor truncations are reported as
// fallback.
func classify(op string, offset int64, err error, fallback error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	var ioErr *ioError
	switch {
	case errors.As(err, &ioErr):
		return &Error{Kind: ErrIO, Op: op, Offset: ioErr.offset, Err: ioErr.err}
	case fallback == ErrFormat:
		// a stream too short to hold its metadata is malformed.
		return &Error{Kind: ErrFormat, Op: op, Offset: offset, Err: err}
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return &Error{Kind: ErrTruncated, Op: op, Offset: offset, Err: err}
	}

	return &Error{Kind: fallback, Op: op, Offset: offset, Err: err}
}
