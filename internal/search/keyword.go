package search

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// DefaultMaxLineBytes caps the length of a single line; longer lines make the
// file unreadable rather than silently truncated.
const DefaultMaxLineBytes = 1 << 20

var errInvalidEncoding = errors.New("invalid UTF-8")

// ContainsKeyword reports whether any line of the file contains keyword as a
// literal, case-sensitive substring. Failures are returned as *FileReadError.
func ContainsKeyword(path, keyword string) (bool, error) {
	return containsKeyword(path, keyword, DefaultMaxLineBytes)
}

func containsKeyword(path, keyword string, maxLineBytes int) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, &FileReadError{Path: path, Err: err}
	}
	defer file.Close()

	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLineBytes)), maxLineBytes)

	needle := []byte(keyword)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if !utf8.Valid(text) {
			return false, &FileReadError{Path: path, Err: fmt.Errorf("line %d: %w", line, errInvalidEncoding)}
		}
		if bytes.Contains(text, needle) {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, &FileReadError{Path: path, Err: err}
	}
	return false, nil
}
