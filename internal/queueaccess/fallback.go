package queueaccess

import (
	"errors"
	"fmt"

	"recap/internal/ipc"
	"recap/internal/queue"
)

// Session is an open Access plus whatever must be released with it.
type Session struct {
	Access Access
	// DialErr records why the daemon could not be reached when Access is
	// backed by the store directly. It is nil for online sessions.
	DialErr error
	release func() error
}

// Close releases the IPC connection or the store handle.
func (s Session) Close() error {
	if s.release == nil {
		return nil
	}
	return s.release()
}

// OpenWithFallback prefers the running daemon so changes go through the
// scheduler. When the daemon is unreachable it opens the queue database
// directly; both failures are reported together.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*queue.Store, error),
) (Session, error) {
	dialErr := errors.New("no daemon dialer configured")
	if dial != nil {
		client, err := dial()
		if err == nil {
			return Session{Access: NewIPCAccess(client), release: client.Close}, nil
		}
		dialErr = err
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured (daemon: %v)", dialErr)
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w (daemon: %v)", err, dialErr)
	}
	return Session{Access: NewStoreAccess(store), DialErr: dialErr, release: store.Close}, nil
}
