package compile

import "fmt"

// Error reports the input that failed to compile.
type Error struct {
	File   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Input returns the content-relative path of the failing file.
func (e *Error) Input() string { return e.File }

func inputError(file string, err error) *Error {
	return &Error{File: file, Reason: err.Error(), Err: err}
}
