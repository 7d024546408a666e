package search

import (
	"errors"
	"fmt"
)

var (
	ErrNotDirectory = errors.New("path is not a directory")
	ErrEmptyKeyword = errors.New("keyword must not be empty")
)

// ListingError reports a directory whose entries could not be enumerated.
type ListingError struct {
	Path string
	Err  error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing %s: %v", e.Path, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// FileReadError reports a file that could not be opened or decoded.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// IsAbsorbed reports whether err is a local I/O failure that counts as a
// zero contribution rather than aborting the search.
func IsAbsorbed(err error) bool {
	var listErr *ListingError
	var readErr *FileReadError
	return errors.As(err, &listErr) || errors.As(err, &readErr)
}
