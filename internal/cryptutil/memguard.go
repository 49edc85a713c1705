//go:build linux || darwin

package cryptutil

import "golang.org/x/sys/unix"

// LockMemory pins b against being paged to swap, for secret material
// such as the recovery machine's temporary private key. Callers should
// treat a failure as a warning, not a fatal error: not every
// environment grants the privilege mlock needs.
func LockMemory(b []byte) error { return unix.Mlock(b) }

// UnlockMemory reverses LockMemory.
func UnlockMemory(b []byte) error { return unix.Munlock(b) }

// DisableCoreDumps sets RLIMIT_CORE to zero for the current process, so a
// crash during a recovery session can't leave the temporary private key
// in a core file.
func DisableCoreDumps() error {
	var rlim unix.Rlimit
	rlim.Cur = 0
	rlim.Max = 0
	return unix.Setrlimit(unix.RLIMIT_CORE, &rlim)
}
