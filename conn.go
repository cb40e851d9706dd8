package imapstore

import (
	"runtime"
	"sync"
)

// Access owns the lifecycle of one authenticated mailbox session. It
// hands out at most one FolderStorage and one MessageStorage, both
// backed by the same transport connection.
//
// Connect/Close manage the session; the storages fail with
// NOT_CONNECTED while the session is down rather than auto-connecting.
type Access struct {
	cfg Config

	mu      sync.Mutex
	tr      Transport
	counted bool
	// trace records the call site that acquired the session, for
	// diagnosing leaked or doubly-used connections.
	trace []byte

	folderMu sync.Mutex
	folders  *FolderStorage

	messageMu sync.Mutex
	messages  *MessageStorage

	observer ConnectionObserver

	// dial is the transport factory; tests replace it.
	dial func(*Config) (Transport, error)
}

// AccessOption customizes a new Access.
type AccessOption func(*Access)

// WithObserver replaces the default prometheus-backed connection
// observer.
func WithObserver(o ConnectionObserver) AccessOption {
	return func(a *Access) { a.observer = o }
}

// WithTransport pins the session to an existing transport instead of
// dialing one. Used by tests and by callers managing pooling above
// this layer.
func WithTransport(tr Transport) AccessOption {
	return func(a *Access) {
		a.dial = func(*Config) (Transport, error) { return tr, nil }
	}
}

// NewAccess creates a disconnected session owner for cfg.
func NewAccess(cfg Config, opts ...AccessOption) *Access {
	a := &Access{
		cfg:      cfg,
		observer: prometheusObserver{},
		dial:     func(cfg *Config) (Transport, error) { return newDialer(cfg) },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect establishes the session. It is idempotent: when already
// connected it re-validates liveness with a NOOP and records the new
// caller's stack trace without reconnecting. Counters are incremented
// only after a full connect + authenticate succeeds, exactly once per
// session.
func (a *Access) Connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tr != nil && a.tr.IsConnected() {
		commandSet{tr: a.tr, cfg: &a.cfg}.forceNoop()
		a.trace = callerTrace()
		return nil
	}

	tr, err := a.dial(&a.cfg)
	if err != nil {
		a.observer.ConnectFailed()
		return classify(&a.cfg, "connect", err)
	}
	a.tr = tr
	a.trace = callerTrace()

	// Symmetry: the closed notification fires iff this one did,
	// tracked with an explicit flag rather than re-checking connection
	// state at teardown.
	a.observer.ConnectSucceeded()
	a.counted = true
	infoLog(-1, "", "mailbox session connected", "user", a.cfg.Username, "host", a.cfg.Host)
	return nil
}

// Close tears the session down. The transport close is best-effort
// (logged, never raised); the teardown below it runs unconditionally:
// counters are decremented if they were incremented, the storage
// singletons and trace state are cleared.
//
// mu is never held while folderMu or messageMu is taken; the storage
// accessors depend on that order.
func (a *Access) Close() {
	a.mu.Lock()
	if a.tr != nil {
		if err := a.tr.Close(); err != nil {
			warnLog(-1, "", "closing connection failed", "error", err, "user", a.cfg.Username)
		}
	}

	if a.counted {
		a.observer.ConnectionClosed()
		a.counted = false
	}

	a.tr = nil
	a.trace = nil
	a.mu.Unlock()

	a.folderMu.Lock()
	a.folders = nil
	a.folderMu.Unlock()

	a.messageMu.Lock()
	a.messages = nil
	a.messageMu.Unlock()
}

// Connected reports whether the session is currently usable.
func (a *Access) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tr != nil && a.tr.IsConnected()
}

// Trace returns the stack trace of the last successful Connect caller,
// or nil when disconnected.
func (a *Access) Trace() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trace
}

// transport returns the live transport or a NOT_CONNECTED error.
func (a *Access) transport() (Transport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tr == nil || !a.tr.IsConnected() {
		return nil, newError(CodeNotConnected, "mailbox session for %q is not connected", a.cfg.Username)
	}
	return a.tr, nil
}

// FolderStorage returns the session's folder storage, creating it on
// first use. The lock only guards the check-and-create step; later
// callers read the published reference.
func (a *Access) FolderStorage() (*FolderStorage, error) {
	tr, err := a.transport()
	if err != nil {
		return nil, err
	}

	a.folderMu.Lock()
	defer a.folderMu.Unlock()
	if a.folders == nil {
		a.folders = newFolderStorage(tr, &a.cfg)
	}
	return a.folders, nil
}

// MessageStorage returns the session's message storage, creating it on
// first use.
func (a *Access) MessageStorage() (*MessageStorage, error) {
	tr, err := a.transport()
	if err != nil {
		return nil, err
	}
	fs, err := a.FolderStorage()
	if err != nil {
		return nil, err
	}

	a.messageMu.Lock()
	defer a.messageMu.Unlock()
	if a.messages == nil {
		a.messages = newMessageStorage(tr, &a.cfg, fs)
	}
	return a.messages, nil
}

func callerTrace() []byte {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return buf[:n]
}
