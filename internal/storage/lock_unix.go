//go:build unix || linux || darwin

// flock(2) implementation for Unix platforms, non-blocking so a second
// process's Open fails fast instead of stalling on a held lock.
package storage

import (
	"os"
	"syscall"
)

func tryLockExclusive(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
