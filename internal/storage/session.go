package storage

// Session is a scoped acquisition of the engine's backing file handle.
// Start*Session acquires the lock; End releases it unconditionally,
// even if called after an error, so callers should `defer sess.End()`
// immediately after a successful Start call.
type Session struct {
	eng   *Engine
	write bool
	ended bool
}

// StartReadSession acquires a shared (read) session.
func (e *Engine) StartReadSession() (*Session, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	e.mu.RLock()
	return &Session{eng: e, write: false}, nil
}

// StartWriteSession acquires an exclusive (write) session.
func (e *Engine) StartWriteSession() (*Session, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	e.mu.Lock()
	return &Session{eng: e, write: true}, nil
}

// End releases the session. Calling End more than once is a no-op
// past the first call.
func (s *Session) End() {
	if s == nil || s.ended {
		return
	}
	s.ended = true
	if s.write {
		s.eng.mu.Unlock()
	} else {
		s.eng.mu.RUnlock()
	}
}

// ensureWrite returns sess if it is a live write session, otherwise
// starts a fresh one. The bool result reports whether the caller owns
// the session and must End it.
func (e *Engine) ensureWrite(sess *Session) (*Session, bool, error) {
	if sess != nil {
		if sess.ended {
			return nil, false, ErrSessionReused
		}
		if !sess.write {
			return nil, false, ErrReadOnlySession
		}
		return sess, false, nil
	}
	s, err := e.StartWriteSession()
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// ensureRead returns sess if live (read or write), otherwise starts a
// fresh read session. The bool result reports ownership as above.
func (e *Engine) ensureRead(sess *Session) (*Session, bool, error) {
	if sess != nil {
		if sess.ended {
			return nil, false, ErrSessionReused
		}
		return sess, false, nil
	}
	s, err := e.StartReadSession()
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}
