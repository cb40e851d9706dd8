package imapstore

import (
	"errors"
	"reflect"
	"testing"
)

func TestSortUIDs(t *testing.T) {
	f := newFakeTransport()
	f.responses["UID SORT (REVERSE DATE) UTF-8 ALL"] = "* SORT 5 3 12 1\r\n"
	c := commandSet{tr: f, cfg: &Config{}}

	uids, err := c.sortUIDs("REVERSE DATE", []string{"ALL"})
	if err != nil {
		t.Fatalf("sortUIDs: %v", err)
	}
	if !reflect.DeepEqual(uids, []int{5, 3, 12, 1}) {
		t.Errorf("uids = %v, server order not preserved", uids)
	}
}

func TestSortUIDsRequiresExactlyOneSet(t *testing.T) {
	c := commandSet{tr: newFakeTransport(), cfg: &Config{}}
	for _, sets := range [][]string{nil, {}, {"1:5", "7:9"}} {
		if _, err := c.sortUIDs("DATE", sets); !IsCode(err, CodeMessagingError) {
			t.Errorf("sortUIDs(%v) = %v, want MESSAGING_ERROR", sets, err)
		}
	}
}

func TestSortUIDsUnsupported(t *testing.T) {
	f := newFakeTransport()
	f.errors["UID SORT (DATE) UTF-8 ALL"] = errors.New("BAD Unknown command")
	c := commandSet{tr: f, cfg: &Config{}}

	if _, err := c.sortUIDs("DATE", []string{"ALL"}); !IsCode(err, CodeCommandNotSupported) {
		t.Errorf("got %v, want COMMAND_NOT_SUPPORTED", err)
	}
}

func TestClassifyExpungeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode Code
		wantNil  bool
	}{
		{"nil", nil, 0, true},
		{"empty mailbox is success", errors.New("NO Mailbox is empty"), 0, true},
		{"invalid system flag", errors.New("BAD Invalid system flag \\Recent"), CodeInvalidSystemFlag, false},
		{"anything else", errors.New("NO EXPUNGE failed"), CodeProtocolError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyExpungeError(tt.err)
			if tt.wantNil {
				if err != nil {
					t.Errorf("got %v, want nil", err)
				}
				return
			}
			if !IsCode(err, tt.wantCode) {
				t.Errorf("got %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestUIDExpungeStopsAtFirstRealFailure(t *testing.T) {
	f := newFakeTransport()
	f.errors["UID EXPUNGE 5:6"] = errors.New("NO EXPUNGE failed")
	c := commandSet{tr: f, cfg: &Config{}}

	err := c.uidExpunge([]int{1, 5, 6, 9})
	if !IsCode(err, CodeProtocolError) {
		t.Fatalf("got %v, want PROTOCOL_ERROR", err)
	}
	// 1 went through, 5:6 failed, 9 must not have been attempted.
	if f.countCalls("UID EXPUNGE 9") != 0 {
		t.Error("expunge continued past the first real failure")
	}
}

func TestDetectReadOnly(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     bool
	}{
		{
			"read-only code on the tagged ok",
			"* 3 EXISTS\r\nX OK [READ-ONLY] SELECT completed\r\n",
			true,
		},
		{
			"read-only code on an untagged line",
			"* OK [READ-ONLY] peek only\r\n* 3 EXISTS\r\n",
			true,
		},
		{
			"empty permanentflags",
			"* OK [PERMANENTFLAGS ()] No permanent flags permitted\r\n* 3 EXISTS\r\n",
			true,
		},
		{
			"writable",
			"* OK [PERMANENTFLAGS (\\Seen \\Deleted \\*)] Flags permitted\r\n* 3 EXISTS\r\n",
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeTransport()
			f.responses[`SELECT "Shared"`] = tt.response
			c := commandSet{tr: f, cfg: &Config{}}
			got, err := c.detectReadOnly("Shared")
			if err != nil {
				t.Fatalf("detectReadOnly: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectReadOnlyFailure(t *testing.T) {
	f := newFakeTransport()
	f.errors[`SELECT "Broken"`] = errors.New("NO SELECT failed")
	c := commandSet{tr: f, cfg: &Config{}}
	if _, err := c.detectReadOnly("Broken"); !IsCode(err, CodeReadOnlyCheckFailed) {
		t.Errorf("got %v, want READ_ONLY_CHECK_FAILED", err)
	}
}

func TestUnseenMessagesEmpty(t *testing.T) {
	f := newFakeTransport()
	f.responses["SEARCH UNSEEN"] = "* SEARCH\r\n"
	c := commandSet{tr: f, cfg: &Config{}}

	msgs, err := c.unseenMessages("default/INBOX", []Field{FieldFlags}, FieldUID, false)
	if err != nil {
		t.Fatalf("unseenMessages: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("want empty non-nil slice, got %v", msgs)
	}
	// No match means no fetch at all.
	if f.countCalls("FETCH") != 0 {
		t.Error("fetch issued for an empty unseen set")
	}
}

func TestUnseenMessages(t *testing.T) {
	f := newFakeTransport()
	f.responses["SEARCH UNSEEN"] = "* SEARCH 1 2\r\n"
	f.responses["FETCH 1:2 (UID FLAGS)"] = "* 1 FETCH (UID 11 FLAGS ())\r\n* 2 FETCH (UID 12 FLAGS ())\r\n"
	c := commandSet{tr: f, cfg: &Config{}}

	msgs, err := c.unseenMessages("default/INBOX", []Field{FieldFlags}, FieldUID, true)
	if err != nil {
		t.Fatalf("unseenMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// descending sort by UID
	if msgs[0].UID != 12 || msgs[1].UID != 11 {
		t.Errorf("message order wrong: %d, %d", msgs[0].UID, msgs[1].UID)
	}
	if msgs[0].Folder != "default/INBOX" {
		t.Errorf("folder label = %q", msgs[0].Folder)
	}
}
