//go:build windows
// +build windows

package search

func getSystemFDLimit() int {
	// Windows has no per-process descriptor rlimit comparable to unix.
	return 8192
}
