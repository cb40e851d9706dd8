package imapstore

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestMessageStorage(f *fakeTransport, cfg *Config) *MessageStorage {
	fs := newFolderStorage(f, cfg)
	return newMessageStorage(f, cfg, fs)
}

func TestDecodeMessagesEnvelope(t *testing.T) {
	body := `* 1 FETCH (UID 9 FLAGS (\Seen) INTERNALDATE "5-Aug-2026 10:00:00 +0000" RFC822.SIZE 2048 ENVELOPE ("Mon, 4 Aug 2026 09:30:00 +0000" "=?utf-8?q?Gr=C3=BC=C3=9Fe?=" (("Alice A" NIL "alice" "example.com")) NIL NIL ((NIL NIL "bob" "example.com")) NIL NIL NIL "<id-1@example.com>"))` + "\r\n"

	msgs, err := decodeMessages(body, "default/INBOX")
	if err != nil {
		t.Fatalf("decodeMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	m := msgs[0]
	if m.UID != 9 || m.Seq != 1 {
		t.Errorf("uid/seq = %d/%d", m.UID, m.Seq)
	}
	if !m.Seen() {
		t.Error("seen flag lost")
	}
	if m.Subject != "Grüße" {
		t.Errorf("subject = %q, encoded word not decoded", m.Subject)
	}
	if m.Size != 2048 {
		t.Errorf("size = %d", m.Size)
	}
	if m.From["alice@example.com"] != "Alice A" {
		t.Errorf("from = %v", m.From)
	}
	if _, ok := m.To["bob@example.com"]; !ok {
		t.Errorf("to = %v", m.To)
	}
	if m.MessageID != "<id-1@example.com>" {
		t.Errorf("message id = %q", m.MessageID)
	}
	wantSent := time.Date(2026, 8, 4, 9, 30, 0, 0, time.UTC)
	if !m.Sent.Equal(wantSent) {
		t.Errorf("sent = %v, want %v", m.Sent, wantSent)
	}
	wantReceived := time.Date(2026, 8, 5, 10, 0, 0, 0, time.UTC)
	if !m.Received.Equal(wantReceived) {
		t.Errorf("received = %v, want %v", m.Received, wantReceived)
	}
	if m.Folder != "default/INBOX" {
		t.Errorf("folder = %q", m.Folder)
	}
}

func TestDecodeMessagesBadDateDegrades(t *testing.T) {
	body := `* 1 FETCH (UID 4 INTERNALDATE "not a date")` + "\r\n"
	msgs, err := decodeMessages(body, "default/INBOX")
	if err != nil {
		t.Fatalf("a broken date must not fail the batch: %v", err)
	}
	if len(msgs) != 1 || !msgs[0].Received.IsZero() {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSliceMessages(t *testing.T) {
	three := []*Message{{UID: 1}, {UID: 2}, {UID: 3}}
	tests := []struct {
		name       string
		start, end int
		wantUIDs   []int
	}{
		{"window past the result", 5, 9, nil},
		{"window larger than the result", 0, 4, []int{1, 2, 3}},
		{"exact prefix", 0, 2, []int{1, 2}},
		{"open end", 1, 0, []int{2, 3}},
		{"inverted window", 2, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sliceMessages(three, tt.start, tt.end)
			if got == nil {
				t.Fatal("sliceMessages returned nil")
			}
			if len(got) != len(tt.wantUIDs) {
				t.Fatalf("got %d messages, want %d", len(got), len(tt.wantUIDs))
			}
			for i, uid := range tt.wantUIDs {
				if got[i].UID != uid {
					t.Errorf("msg[%d].UID = %d, want %d", i, got[i].UID, uid)
				}
			}
		})
	}
}

func TestOpenFolderIdempotent(t *testing.T) {
	f := newFakeTransport()
	f.scriptSeparator()
	f.scriptFolder("INBOX", `\HasNoChildren`)
	ms := newTestMessageStorage(f, &Config{})

	if err := ms.openFolder("INBOX", false); err != nil {
		t.Fatal(err)
	}
	if err := ms.openFolder("INBOX", false); err != nil {
		t.Fatal(err)
	}
	if got := f.countCalls("SELECT INBOX"); got != 1 {
		t.Errorf("SELECT issued %d times for the same folder, want 1", got)
	}
}

func TestOpenFolderUpgradesToWrite(t *testing.T) {
	f := newFakeTransport()
	f.scriptSeparator()
	f.scriptFolder("INBOX", `\HasNoChildren`)
	ms := newTestMessageStorage(f, &Config{AllowReadOnlySelect: true})

	if err := ms.openFolder("INBOX", false); err != nil {
		t.Fatal(err)
	}
	if f.countCalls("EXAMINE INBOX") != 1 {
		t.Fatal("read open did not use EXAMINE")
	}
	if err := ms.openFolder("INBOX", true); err != nil {
		t.Fatal(err)
	}
	if f.countCalls("SELECT INBOX") != 1 {
		t.Error("write open did not upgrade via SELECT")
	}

	// The read-only open is closed before the writable one starts.
	unselect := f.callIndex("UNSELECT")
	if unselect == -1 || unselect < f.callIndex("EXAMINE INBOX") || unselect > f.callIndex("SELECT INBOX") {
		t.Errorf("EXAMINE not closed before SELECT, calls: %v", f.calls)
	}
}

func TestOpenFolderClosesPreviousFolder(t *testing.T) {
	f := newFakeTransport()
	f.scriptSeparator()
	f.scriptFolder("Alpha", `\HasNoChildren`)
	f.scriptFolder("Beta", `\HasNoChildren`)
	ms := newTestMessageStorage(f, &Config{})

	if err := ms.openFolder("Alpha", false); err != nil {
		t.Fatal(err)
	}
	if err := ms.openFolder("Beta", false); err != nil {
		t.Fatal(err)
	}

	unselect := f.callIndex("UNSELECT")
	if unselect == -1 {
		t.Fatalf("previous folder never closed, calls: %v", f.calls)
	}
	if unselect < f.callIndex("SELECT Alpha") || unselect > f.callIndex("SELECT Beta") {
		t.Errorf("UNSELECT not between the two opens, calls: %v", f.calls)
	}
}

func TestOpenFolderRejectsNoselect(t *testing.T) {
	f := newFakeTransport()
	f.scriptSeparator()
	f.scriptFolder("Container", `\Noselect \HasChildren`)
	ms := newTestMessageStorage(f, &Config{})

	if err := ms.openFolder("Container", false); !IsCode(err, CodeFolderHoldsNoMessages) {
		t.Errorf("got %v, want FOLDER_HOLDS_NO_MESSAGES", err)
	}
}

func TestListMessagesPagination(t *testing.T) {
	f := newFakeTransport()
	f.scriptSeparator()
	f.scriptFolder("INBOX", `\HasNoChildren`)
	f.responses["UID SEARCH ALL"] = "* SEARCH 5 3 9\r\n"
	f.responses["UID FETCH 3,5,9 (UID FLAGS)"] = "* 1 FETCH (UID 5 FLAGS ())\r\n" +
		"* 2 FETCH (UID 3 FLAGS ())\r\n" +
		"* 3 FETCH (UID 9 FLAGS ())\r\n"
	ms := newTestMessageStorage(f, &Config{})

	msgs, err := ms.ListMessages("default/INBOX", []Field{FieldFlags}, FieldUID, false, 0, 4)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("window [0,4) over 3 messages gave %d", len(msgs))
	}
	if msgs[0].UID != 3 || msgs[1].UID != 5 || msgs[2].UID != 9 {
		t.Errorf("not sorted by UID: %d %d %d", msgs[0].UID, msgs[1].UID, msgs[2].UID)
	}

	msgs, err = ms.ListMessages("default/INBOX", []Field{FieldFlags}, FieldUID, false, 5, 9)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("window [5,9) over 3 messages gave %d", len(msgs))
	}
}

func TestListMessagesEmptyFolder(t *testing.T) {
	f := newFakeTransport()
	f.scriptSeparator()
	f.scriptFolder("INBOX", `\HasNoChildren`)
	f.responses["UID SEARCH ALL"] = "* SEARCH\r\n"
	ms := newTestMessageStorage(f, &Config{})

	msgs, err := ms.ListMessages("default/INBOX", []Field{FieldFlags}, FieldUID, false, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("want empty non-nil slice, got %v", msgs)
	}
	if f.countCalls("UID FETCH") != 0 {
		t.Error("fetch issued for an empty folder")
	}
}

func getMessageFetchCmd(uid int) string {
	return fmt.Sprintf("UID FETCH %d (UID FLAGS INTERNALDATE RFC822.SIZE ENVELOPE BODYSTRUCTURE BODY.PEEK[HEADER])", uid)
}

func TestGetMessageRemoved(t *testing.T) {
	f := newFakeTransport()
	f.scriptDefaultFolders()
	ms := newTestMessageStorage(f, &Config{})

	_, err := ms.GetMessage("default/INBOX", 7, false)
	if !IsCode(err, CodeMessageRemoved) {
		t.Fatalf("got %v, want MESSAGE_REMOVED", err)
	}
	me := AsMailError(err)
	if me == nil || !strings.Contains(me.Message, "7") || !strings.Contains(me.Message, "INBOX") {
		t.Errorf("error %v does not name the message and folder", err)
	}
}

func TestGetMessageMarksSeen(t *testing.T) {
	f := newFakeTransport()
	f.scriptDefaultFolders()
	f.responses[getMessageFetchCmd(7)] = "* 1 FETCH (UID 7 FLAGS ())\r\n"
	ms := newTestMessageStorage(f, &Config{})

	if _, err := ms.GetMessage("default/INBOX", 7, true); err != nil {
		t.Fatal(err)
	}
	if f.countCalls(`UID STORE 7 +FLAGS.SILENT (\Seen)`) != 1 {
		t.Errorf("seen mark not stored, calls: %v", f.calls)
	}
}

func TestGetMessageDefersSeenOnStoreFailure(t *testing.T) {
	f := newFakeTransport()
	f.scriptDefaultFolders()
	f.scriptFolder("Archive", `\HasNoChildren`)
	f.responses[getMessageFetchCmd(7)] = "* 1 FETCH (UID 7 FLAGS ())\r\n"
	f.responses["UID SEARCH ALL"] = "* SEARCH\r\n"
	f.errors[`UID STORE 7 +FLAGS.SILENT (\Seen)`] = fmt.Errorf("server hiccup")
	ms := newTestMessageStorage(f, &Config{})

	msg, err := ms.GetMessage("default/INBOX", 7, true)
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil {
		t.Fatal("message not delivered despite the failed mark")
	}
	if ms.pendingSeenUID != 7 {
		t.Fatalf("pending slot = %d, want 7", ms.pendingSeenUID)
	}

	// Switching folders retries the parked mark before moving on.
	if _, err := ms.ListMessages("default/Archive", []Field{FieldFlags}, FieldUID, false, 0, 0); err != nil {
		t.Fatal(err)
	}
	if got := f.countCalls(`UID STORE 7 +FLAGS.SILENT (\Seen)`); got != 2 {
		t.Errorf("store attempted %d times, want 2, calls: %v", got, f.calls)
	}
	if ms.pendingSeenUID != 0 {
		t.Error("pending slot not cleared")
	}
}

func TestGetMessageSetsDraftFlagInDrafts(t *testing.T) {
	f := newFakeTransport()
	f.scriptDefaultFolders()
	f.scriptFolder("Drafts", `\HasNoChildren`)
	f.responses[getMessageFetchCmd(5)] = "* 1 FETCH (UID 5 FLAGS ())\r\n"
	ms := newTestMessageStorage(f, &Config{})

	msg, err := ms.GetMessage("default/Drafts", 5, false)
	if err != nil {
		t.Fatal(err)
	}
	if f.countCalls(`UID STORE 5 +FLAGS.SILENT (\Draft)`) != 1 {
		t.Errorf("draft flag not written, calls: %v", f.calls)
	}
	if !msg.Draft() {
		t.Errorf("returned message lacks the draft flag: %v", msg.Flags)
	}
}

func TestGetMessageClearsDraftFlagOutsideDrafts(t *testing.T) {
	f := newFakeTransport()
	f.scriptDefaultFolders()
	f.responses[getMessageFetchCmd(7)] = "* 1 FETCH (UID 7 FLAGS (\\Draft))\r\n"
	ms := newTestMessageStorage(f, &Config{})

	msg, err := ms.GetMessage("default/INBOX", 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if f.countCalls(`UID STORE 7 -FLAGS.SILENT (\Draft)`) != 1 {
		t.Errorf("draft flag not cleared, calls: %v", f.calls)
	}
	if msg.Draft() {
		t.Errorf("returned message still carries the draft flag: %v", msg.Flags)
	}
}

func TestDeleteMessagesSoftDeleteOrdering(t *testing.T) {
	f := newFakeTransport()
	f.scriptDefaultFolders()
	f.scriptFolder("Trash", `\HasNoChildren`)
	ms := newTestMessageStorage(f, &Config{})

	if err := ms.DeleteMessages("default/INBOX", []int{3, 4, 5}, false); err != nil {
		t.Fatalf("DeleteMessages: %v", err)
	}

	copyIdx := f.callIndex(`UID COPY 3:5 "Trash"`)
	storeIdx := f.callIndex(`UID STORE 3:5 +FLAGS (\Deleted)`)
	expungeIdx := f.callIndex("EXPUNGE")
	if copyIdx == -1 || storeIdx == -1 || expungeIdx == -1 {
		t.Fatalf("missing commands, calls: %v", f.calls)
	}
	if !(copyIdx < storeIdx && storeIdx < expungeIdx) {
		t.Errorf("destructive steps out of order: copy=%d store=%d expunge=%d", copyIdx, storeIdx, expungeIdx)
	}
	// The folder is closed afterwards to resynchronize.
	if f.callIndex("UNSELECT") < expungeIdx {
		t.Error("folder not closed after the expunge")
	}
}

func TestDeleteMessagesFailedCopyLeavesFolderUntouched(t *testing.T) {
	f := newFakeTransport()
	f.scriptDefaultFolders()
	f.errors[`UID COPY 3 "Trash"`] = errors.New("NO [OVERQUOTA] Quota exceeded")
	ms := newTestMessageStorage(f, &Config{})

	err := ms.DeleteMessages("default/INBOX", []int{3}, false)
	if !IsCode(err, CodeQuotaExceeded) {
		t.Fatalf("got %v, want QUOTA_EXCEEDED", err)
	}
	if f.countCalls("UID STORE") != 0 || f.countCalls("EXPUNGE") != 0 {
		t.Error("messages were touched although the trash copy failed")
	}
}

func TestDeleteMessagesHardSkipsTrashCopy(t *testing.T) {
	f := newFakeTransport()
	f.scriptDefaultFolders()
	ms := newTestMessageStorage(f, &Config{})

	if err := ms.DeleteMessages("default/INBOX", []int{3}, true); err != nil {
		t.Fatal(err)
	}
	if f.countCalls("UID COPY") != 0 {
		t.Error("hard delete still copied to trash")
	}
}

func TestDeleteMessagesInTrashIsAlwaysHard(t *testing.T) {
	f := newFakeTransport()
	f.scriptDefaultFolders()
	f.scriptFolder("Trash", `\HasNoChildren`)
	ms := newTestMessageStorage(f, &Config{})

	if err := ms.DeleteMessages("default/Trash", []int{3}, false); err != nil {
		t.Fatal(err)
	}
	if f.countCalls("UID COPY") != 0 {
		t.Error("deleting from trash copied to trash")
	}
}

func TestFolderReadOnlyProbe(t *testing.T) {
	f := newFakeTransport()
	f.scriptSeparator()
	f.responses[`SELECT "Shared"`] = "* OK [READ-ONLY] SELECT completed\r\n"
	ms := newTestMessageStorage(f, &Config{})

	ro, err := ms.FolderReadOnly("default/Shared")
	if err != nil {
		t.Fatal(err)
	}
	if !ro {
		t.Error("read-only marker not detected")
	}
}

func TestServerSortUIDs(t *testing.T) {
	f := newFakeTransport()
	f.scriptSeparator()
	f.scriptFolder("INBOX", `\HasNoChildren`)
	f.responses["UID SORT (REVERSE DATE) UTF-8 ALL"] = "* SORT 9 3 5\r\n"
	ms := newTestMessageStorage(f, &Config{})

	uids, err := ms.ServerSortUIDs("default/INBOX", "REVERSE DATE")
	if err != nil {
		t.Fatal(err)
	}
	if len(uids) != 3 || uids[0] != 9 || uids[1] != 3 || uids[2] != 5 {
		t.Errorf("server order not preserved: %v", uids)
	}
}

func TestAppendMessageUsesNonSyncLiteral(t *testing.T) {
	f := newFakeTransport()
	f.scriptSeparator()
	ms := newTestMessageStorage(f, &Config{})

	raw := []byte("From: a@example.com\r\n\r\nhi\r\n")
	if err := ms.AppendMessage("default/Drafts", []string{`\Draft`}, raw); err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf(`APPEND "Drafts" (\Draft) {%d+}%s%s`, len(raw), "\r\n", raw)
	if f.callIndex(want) == -1 {
		t.Errorf("append command wrong, calls: %v", f.calls)
	}
}
