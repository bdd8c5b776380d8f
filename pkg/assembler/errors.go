package assembler

import (
	"errors"
	"fmt"
)

var (
	// ErrImageDecode is matched by ImageDecodeError.
	ErrImageDecode = errors.New("image decode failed")

	// ErrOutputWrite is matched by OutputWriteError.
	ErrOutputWrite = errors.New("output write failed")

	// ErrFinalized is returned when a finalized Document is written to again.
	ErrFinalized = errors.New("document already finalized")
)

// ImageDecodeError reports a sub-page whose bytes are not a decodable image.
type ImageDecodeError struct {
	PageNum int
	Err     error
}

// Error implements the error interface.
func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.PageNum, ErrImageDecode, e.Err)
}

// Unwrap returns the underlying error.
func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrImageDecode.
func (e *ImageDecodeError) Is(target error) bool {
	return target == ErrImageDecode
}

// OutputWriteError reports a destination that could not be created or written.
type OutputWriteError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, ErrOutputWrite, e.Err)
}

// Unwrap returns the underlying error.
func (e *OutputWriteError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrOutputWrite.
func (e *OutputWriteError) Is(target error) bool {
	return target == ErrOutputWrite
}
