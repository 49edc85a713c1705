//go:build !linux && !darwin

package cryptutil

import "errors"

var errMemguardUnsupported = errors.New("cryptutil: memory locking unsupported on this platform")

func LockMemory(b []byte) error   { return errMemguardUnsupported }
func UnlockMemory(b []byte) error { return errMemguardUnsupported }
func DisableCoreDumps() error     { return errMemguardUnsupported }
