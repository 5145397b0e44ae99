// OS-level file locking. A single non-blocking exclusive lock is
// acquired once when a file is opened: a fail-fast guard against two
// ReactiveDB processes touching the same table or index file, not a
// mechanism for sharing it.
package storage

import "os"

// guardLock wraps an OS advisory lock acquired for the lifetime of an
// open Engine.
type guardLock struct {
	f *os.File
}

// acquireGuard takes a non-blocking exclusive lock on f, returning ErrLocked
// if another process already holds it.
func acquireGuard(f *os.File) (*guardLock, error) {
	if err := tryLockExclusive(f); err != nil {
		return nil, ErrLocked
	}
	return &guardLock{f: f}, nil
}

func (g *guardLock) release() {
	if g == nil || g.f == nil {
		return
	}
	unlockFile(g.f)
	g.f = nil
}
