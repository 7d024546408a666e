//go:build !windows
// +build !windows

package search

import "syscall"

func getSystemFDLimit() int {
	var rlim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlim); err != nil {
		return 1024
	}
	return int(min(rlim.Cur, 100000))
}
