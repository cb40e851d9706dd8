package imapstore

import (
	"errors"
	"sync"
	"testing"
)

// countingObserver records lifecycle notifications.
type countingObserver struct {
	succeeded int
	failed    int
	closed    int
}

func (o *countingObserver) ConnectSucceeded() { o.succeeded++ }
func (o *countingObserver) ConnectFailed()    { o.failed++ }
func (o *countingObserver) ConnectionClosed() { o.closed++ }

func newTestAccess(f *fakeTransport, obs *countingObserver) *Access {
	return NewAccess(Config{Username: "user@example.com"}, WithTransport(f), WithObserver(obs))
}

func TestConnectIdempotent(t *testing.T) {
	f := newFakeTransport()
	obs := &countingObserver{}
	a := newTestAccess(f, obs)

	if err := a.Connect(); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := a.Connect(); err != nil {
		t.Fatalf("second connect: %v", err)
	}

	if obs.succeeded != 1 {
		t.Errorf("ConnectSucceeded fired %d times, want 1", obs.succeeded)
	}
	// The second connect only probes liveness.
	if f.countCalls("NOOP") != 1 {
		t.Errorf("NOOP count = %d, want 1", f.countCalls("NOOP"))
	}
	if !a.Connected() {
		t.Error("session not connected after Connect")
	}
	if a.Trace() == nil {
		t.Error("no caller trace recorded")
	}
}

func TestConnectFailure(t *testing.T) {
	obs := &countingObserver{}
	a := NewAccess(Config{Username: "user@example.com"}, WithObserver(obs))
	a.dial = func(*Config) (Transport, error) {
		return nil, errors.New("NO [AUTHENTICATIONFAILED] Authentication failed.")
	}

	err := a.Connect()
	if !IsCode(err, CodeInvalidCredentials) {
		t.Fatalf("got %v, want INVALID_CREDENTIALS", err)
	}
	if obs.failed != 1 || obs.succeeded != 0 {
		t.Errorf("observer: failed=%d succeeded=%d", obs.failed, obs.succeeded)
	}
	if a.Connected() {
		t.Error("session claims connected after failed dial")
	}
}

func TestCloseSymmetry(t *testing.T) {
	f := newFakeTransport()
	obs := &countingObserver{}
	a := newTestAccess(f, obs)

	// Close before any connect must not notify.
	a.Close()
	if obs.closed != 0 {
		t.Fatalf("closed fired without a connect")
	}

	if err := a.Connect(); err != nil {
		t.Fatal(err)
	}
	a.Close()
	a.Close()
	if obs.closed != 1 {
		t.Errorf("closed fired %d times for one connect, want 1", obs.closed)
	}
	if a.Connected() {
		t.Error("still connected after Close")
	}
	if a.Trace() != nil {
		t.Error("trace survived Close")
	}
}

func TestCloseRunsTeardownDespiteTransportError(t *testing.T) {
	f := newFakeTransport()
	f.closeErr = errors.New("broken pipe")
	obs := &countingObserver{}
	a := newTestAccess(f, obs)

	if err := a.Connect(); err != nil {
		t.Fatal(err)
	}
	a.Close()
	if obs.closed != 1 {
		t.Error("teardown skipped because the transport close failed")
	}
	if a.Connected() {
		t.Error("session still connected")
	}
}

func TestCloseConcurrentWithStorageAccess(t *testing.T) {
	// Close and the storage accessors take their locks in a fixed
	// order; racing them must never deadlock.
	for i := 0; i < 50; i++ {
		f := newFakeTransport()
		a := newTestAccess(f, &countingObserver{})
		if err := a.Connect(); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = a.MessageStorage()
		}()
		go func() {
			defer wg.Done()
			a.Close()
		}()
		wg.Wait()
	}
}

func TestStoragesRequireConnection(t *testing.T) {
	a := newTestAccess(newFakeTransport(), &countingObserver{})

	if _, err := a.FolderStorage(); !IsCode(err, CodeNotConnected) {
		t.Errorf("FolderStorage before connect: %v, want NOT_CONNECTED", err)
	}
	if _, err := a.MessageStorage(); !IsCode(err, CodeNotConnected) {
		t.Errorf("MessageStorage before connect: %v, want NOT_CONNECTED", err)
	}
}

func TestStorageSingletons(t *testing.T) {
	f := newFakeTransport()
	a := newTestAccess(f, &countingObserver{})
	if err := a.Connect(); err != nil {
		t.Fatal(err)
	}

	fs1, err := a.FolderStorage()
	if err != nil {
		t.Fatal(err)
	}
	fs2, err := a.FolderStorage()
	if err != nil {
		t.Fatal(err)
	}
	if fs1 != fs2 {
		t.Error("FolderStorage not a singleton per session")
	}

	ms1, err := a.MessageStorage()
	if err != nil {
		t.Fatal(err)
	}
	ms2, err := a.MessageStorage()
	if err != nil {
		t.Fatal(err)
	}
	if ms1 != ms2 {
		t.Error("MessageStorage not a singleton per session")
	}

	// A new session gets new storages.
	a.Close()
	f.connected = true
	if err := a.Connect(); err != nil {
		t.Fatal(err)
	}
	fs3, err := a.FolderStorage()
	if err != nil {
		t.Fatal(err)
	}
	if fs3 == fs1 {
		t.Error("storage survived a session teardown")
	}
}
