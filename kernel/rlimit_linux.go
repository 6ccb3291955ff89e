//go:build linux
// +build linux

package kernel

import "golang.org/x/sys/unix"

// RaiseFDLimit requests a soft RLIMIT_NOFILE of at least n, leaving the
// hard limit untouched. The request is capped at the hard limit, so it
// returns the (possibly unchanged) soft/hard pair that ended up in
// effect.
func RaiseFDLimit(n uint64) (soft, hard uint64, err error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, 0, &Error{Op: "getrlimit", What: "RLIMIT_NOFILE", Err: err}
	}
	if n <= rlim.Cur {
		return rlim.Cur, rlim.Max, nil
	}
	rlim.Cur = n
	if rlim.Cur > rlim.Max {
		rlim.Cur = rlim.Max
	}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, 0, &Error{Op: "setrlimit", What: "RLIMIT_NOFILE", Err: err}
	}
	return rlim.Cur, rlim.Max, nil
}
