package imapstore

import (
	"strings"
)

// fakeTransport scripts Exec responses per exact command string.
// Unscripted commands succeed with an empty response, so tests only
// script what they assert on. Every command and mailbox transition is
// recorded in calls.
type fakeTransport struct {
	calls     []string
	responses map[string]string
	errors    map[string]error

	selected  string
	readOnly  bool
	connected bool
	selectErr error
	closeErr  error

	// onExec, when set, runs after each recorded command so tests can
	// change scripted responses mid-flight.
	onExec func(command string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: make(map[string]string),
		errors:    make(map[string]error),
		connected: true,
	}
}

func (f *fakeTransport) Exec(command string, buildResponse bool, retryCount int, processLine func(line []byte) error) (string, error) {
	f.calls = append(f.calls, command)
	if f.onExec != nil {
		f.onExec(command)
	}
	if err, ok := f.errors[command]; ok {
		return "", err
	}
	r := f.responses[command]
	if processLine != nil {
		for _, line := range strings.Split(r, "\r\n") {
			if line == "" {
				continue
			}
			if err := processLine([]byte(line + "\r\n")); err != nil {
				return "", err
			}
		}
	}
	return r, nil
}

func (f *fakeTransport) Select(fullname string, readOnly bool) error {
	verb := "SELECT"
	if readOnly {
		verb = "EXAMINE"
	}
	f.calls = append(f.calls, verb+" "+fullname)
	if f.selectErr != nil {
		return f.selectErr
	}
	f.selected = fullname
	f.readOnly = readOnly
	return nil
}

func (f *fakeTransport) Unselect() error {
	f.calls = append(f.calls, "UNSELECT")
	f.selected = ""
	f.readOnly = false
	return nil
}

func (f *fakeTransport) Mailbox() (string, bool, bool) {
	return f.selected, f.readOnly, f.selected != ""
}

func (f *fakeTransport) Reconnect() error {
	f.calls = append(f.calls, "RECONNECT")
	f.connected = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.calls = append(f.calls, "CLOSE-CONN")
	f.connected = false
	return f.closeErr
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

// countCalls counts recorded calls starting with the given prefix.
func (f *fakeTransport) countCalls(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// callIndex returns the position of the first call with the given
// prefix, -1 when absent.
func (f *fakeTransport) callIndex(prefix string) int {
	for i, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// scriptSeparator scripts the empty LIST used for separator discovery.
func (f *fakeTransport) scriptSeparator() {
	f.responses[`LIST "" ""`] = "* LIST (\\Noselect) \"/\" \"\"\r\n"
}

// scriptDefaultFolders scripts the minimum the default-folder
// bootstrap needs: an existing, subscribed INBOX with root-level
// siblings. Everything else gets created against the permissive
// default responses.
func (f *fakeTransport) scriptDefaultFolders() {
	f.scriptSeparator()
	f.responses[`LIST "" "INBOX"`] = "* LIST (\\HasNoChildren) \"/\" \"INBOX\"\r\n"
	f.responses[`LSUB "" "INBOX"`] = "* LSUB () \"/\" \"INBOX\"\r\n"
	f.responses[`LIST "" "%"`] = "* LIST (\\HasNoChildren) \"/\" \"INBOX\"\r\n" +
		"* LIST (\\HasNoChildren) \"/\" \"Trash\"\r\n"
}

// scriptFolder makes one folder exist for LIST lookups and reports it
// subscribed.
func (f *fakeTransport) scriptFolder(real string, attrs string) {
	f.responses[`LIST "" "`+real+`"`] = "* LIST (" + attrs + ") \"/\" \"" + real + "\"\r\n"
	f.responses[`LSUB "" "`+real+`"`] = "* LSUB () \"/\" \"" + real + "\"\r\n"
}
