package imapstore

import (
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/net/html/charset"
)

// EmailAddresses maps lowercased email addresses to display names.
type EmailAddresses map[string]string

// String renders the addresses the way they appear in a header line.
func (e EmailAddresses) String() string {
	out := strings.Builder{}
	i := 0
	for addr, name := range e {
		if i != 0 {
			out.WriteString(", ")
		}
		switch {
		case name == "":
			out.WriteString(addr)
		case strings.ContainsRune(name, ','):
			out.WriteString(fmt.Sprintf(`"%s" <%s>`, AddSlashes.Replace(name), addr))
		default:
			out.WriteString(fmt.Sprintf(`%s <%s>`, name, addr))
		}
		i++
	}
	return out.String()
}

// Message is one mail message as seen through the message storage.
// Which fields are populated depends on the fields requested from the
// listing operation that produced it.
type Message struct {
	UID      int
	Seq      int
	Folder   string
	Flags    []string
	Received time.Time
	Sent     time.Time
	Size     uint64

	Subject   string
	MessageID string
	From      EmailAddresses
	To        EmailAddresses
	CC        EmailAddresses
	BCC       EmailAddresses
	ReplyTo   EmailAddresses

	// Headers carries the recovered raw headers when FieldHeaders was
	// requested. Last occurrence wins for repeated names.
	Headers map[string]string

	// HasAttachment is derived from the body structure when
	// FieldBodyStructure was requested.
	HasAttachment bool
}

// Seen reports whether the message carries the \Seen flag.
func (m *Message) Seen() bool { return hasFlag(m.Flags, "Seen") }

// Answered reports whether the message carries the \Answered flag.
func (m *Message) Answered() bool { return hasFlag(m.Flags, "Answered") }

// Draft reports whether the message carries the \Draft flag.
func (m *Message) Draft() bool { return hasFlag(m.Flags, "Draft") }

// Deleted reports whether the message carries the \Deleted flag.
func (m *Message) Deleted() bool { return hasFlag(m.Flags, "Deleted") }

// Field is a logical message field callers can request or sort by.
// Fetch commands request only the wire items the chosen fields need.
type Field int

const (
	FieldUID Field = iota
	FieldFlags
	FieldSeen
	FieldAnswered
	FieldDraft
	FieldReceivedDate
	FieldSentDate
	FieldSize
	FieldFrom
	FieldTo
	FieldCC
	FieldBCC
	FieldSubject
	FieldMessageID
	FieldBodyStructure
	FieldHeaders
)

// envelope component offsets per RFC 3501
const (
	eDate uint8 = iota
	eSubject
	eFrom
	eSender
	eReplyTo
	eTo
	eCC
	eBCC
	eInReplyTo
	eMessageID
)

// address component offsets within an envelope address
const (
	eeName uint8 = iota
	eeSR
	eeMailbox
	eeHost
)

// newWordDecoder builds a MIME word decoder that understands the
// charsets seen in the wild, windows-* aliases included.
func newWordDecoder() *mime.WordDecoder {
	return &mime.WordDecoder{CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
		label = strings.Replace(label, "windows-", "cp", -1)
		encoding, _ := charset.Lookup(label)
		if encoding == nil {
			return nil, fmt.Errorf("unknown charset %q", label)
		}
		return encoding.NewDecoder().Reader(input), nil
	}}
}

func decodeWord(dec *mime.WordDecoder, s string) string {
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// decodeAddresses converts one envelope address-list container into a
// map of address to display name.
func decodeAddresses(dec *mime.WordDecoder, t *Token) EmailAddresses {
	if t == nil || t.Type != TContainer {
		return nil
	}
	addrs := make(EmailAddresses, len(t.Tokens))
	for _, a := range t.Tokens {
		if a.Type != TContainer || len(a.Tokens) <= int(eeHost) {
			continue
		}
		mailbox := a.Tokens[eeMailbox]
		host := a.Tokens[eeHost]
		if mailbox.Type == TNil || host.Type == TNil {
			continue
		}
		addr := strings.ToLower(mailbox.Str + "@" + host.Str)
		name := ""
		if a.Tokens[eeName].Type != TNil {
			name = decodeWord(dec, a.Tokens[eeName].Str)
		}
		addrs[addr] = name
	}
	return addrs
}

// bodyHasAttachment walks a BODYSTRUCTURE token tree looking for an
// attachment disposition or a non-inline second part.
func bodyHasAttachment(t *Token) bool {
	if t == nil {
		return false
	}
	if t.Type == TQuoted || t.Type == TLiteral || t.Type == TAtom {
		return strings.EqualFold(t.Str, "attachment")
	}
	if t.Type == TContainer {
		for _, child := range t.Tokens {
			if bodyHasAttachment(child) {
				return true
			}
		}
	}
	return false
}

// decodeMessages converts a FETCH response body into messages. The
// fullname labels each message with its source folder; tolerable
// damage (an unparsable envelope date, an unknown charset) degrades to
// the raw value instead of failing the batch.
func decodeMessages(response, fullname string) ([]*Message, error) {
	records, err := parseFetchRecords(response)
	if err != nil {
		return nil, wrapError(err, CodeParseError, "unreadable FETCH response for folder %q", fullname)
	}

	dec := newWordDecoder()
	msgs := make([]*Message, 0, len(records))
	for _, rec := range records {
		m := &Message{Seq: rec.Seq, Folder: fullname}
		tks := rec.Tokens
		skip := 0
		for i, t := range tks {
			if skip > 0 {
				skip--
				continue
			}
			if err := checkType(t, []TType{TLiteral}, tks, "in root"); err != nil {
				if Verbose {
					spew.Dump(tks)
				}
				return nil, wrapError(err, CodeParseError, "unreadable FETCH record in folder %q", fullname)
			}
			switch t.Str {
			case "UID":
				if err := checkType(tks[i+1], []TType{TNumber}, tks, "after UID"); err != nil {
					return nil, wrapError(err, CodeParseError, "unreadable UID in folder %q", fullname)
				}
				m.UID = tks[i+1].Num
				skip++
			case "FLAGS":
				if err := checkType(tks[i+1], []TType{TContainer}, tks, "after FLAGS"); err != nil {
					return nil, wrapError(err, CodeParseError, "unreadable FLAGS in folder %q", fullname)
				}
				m.Flags = make([]string, 0, len(tks[i+1].Tokens))
				for _, f := range tks[i+1].Tokens {
					m.Flags = append(m.Flags, f.Str)
				}
				skip++
			case "INTERNALDATE":
				if err := checkType(tks[i+1], []TType{TQuoted}, tks, "after INTERNALDATE"); err != nil {
					return nil, wrapError(err, CodeParseError, "unreadable INTERNALDATE in folder %q", fullname)
				}
				received, err := time.Parse(TimeFormat, tks[i+1].Str)
				if err != nil {
					debugLog(-1, fullname, "unparsable internal date", "value", tks[i+1].Str)
				} else {
					m.Received = received.UTC()
				}
				skip++
			case "RFC822.SIZE":
				if err := checkType(tks[i+1], []TType{TNumber}, tks, "after RFC822.SIZE"); err != nil {
					return nil, wrapError(err, CodeParseError, "unreadable RFC822.SIZE in folder %q", fullname)
				}
				m.Size = uint64(tks[i+1].Num)
				skip++
			case "ENVELOPE":
				if err := checkType(tks[i+1], []TType{TContainer}, tks, "after ENVELOPE"); err != nil {
					return nil, wrapError(err, CodeParseError, "unreadable ENVELOPE in folder %q", fullname)
				}
				env := tks[i+1].Tokens
				if len(env) > int(eMessageID) {
					if env[eDate].Type != TNil {
						if sent, err := time.Parse(SentTimeFormat, env[eDate].Str); err == nil {
							m.Sent = sent.UTC()
						} else {
							debugLog(-1, fullname, "unparsable envelope date", "value", env[eDate].Str)
						}
					}
					if env[eSubject].Type != TNil {
						m.Subject = decodeWord(dec, env[eSubject].Str)
					}
					if env[eMessageID].Type != TNil {
						m.MessageID = env[eMessageID].Str
					}
					m.From = decodeAddresses(dec, env[eFrom])
					m.ReplyTo = decodeAddresses(dec, env[eReplyTo])
					m.To = decodeAddresses(dec, env[eTo])
					m.CC = decodeAddresses(dec, env[eCC])
					m.BCC = decodeAddresses(dec, env[eBCC])
				}
				skip++
			case "BODYSTRUCTURE":
				if err := checkType(tks[i+1], []TType{TContainer}, tks, "after BODYSTRUCTURE"); err != nil {
					return nil, wrapError(err, CodeParseError, "unreadable BODYSTRUCTURE in folder %q", fullname)
				}
				m.HasAttachment = bodyHasAttachment(tks[i+1])
				skip++
			case "BODY[HEADER]":
				if i+1 < len(tks) && (tks[i+1].Type == TAtom || tks[i+1].Type == TQuoted || tks[i+1].Type == TLiteral) {
					m.Headers = recoverHeaders(tks[i+1].Str)
					skip++
				}
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// folderState tracks which folder the message storage currently has
// open on its transport, and in which mode.
type folderState int

const (
	stateClosed folderState = iota
	stateOpen
)

// MessageStorage is the message-level view of one mailbox session. One
// folder at a time is open on the underlying transport; all operations
// are serialized by an internal lock.
type MessageStorage struct {
	tr      Transport
	cfg     *Config
	folders *FolderStorage
	cmds    commandSet

	mu       sync.Mutex
	state    folderState
	fullname string
	readOnly bool

	// pendingSeenUID is the deferred seen-mark slot: a message whose
	// body was delivered out of a read-only open, to be marked seen
	// once the folder is writable again. Zero means empty.
	pendingSeenUID int
}

func newMessageStorage(tr Transport, cfg *Config, folders *FolderStorage) *MessageStorage {
	return &MessageStorage{
		tr:      tr,
		cfg:     cfg,
		folders: folders,
		cmds:    commandSet{tr: tr, cfg: cfg},
	}
}

// openFolder moves the storage to the open state for a folder.
// Reopening the folder that is already open in a sufficient mode is a
// no-op; every other transition out of the open state closes the
// current folder first, flushing the deferred seen-mark on the way.
// That holds for switching folders and for upgrading a read-only open
// to read-write. Opening a folder that cannot hold messages is
// rejected.
func (ms *MessageStorage) openFolder(real string, write bool) error {
	if ms.state == stateOpen {
		if ms.fullname == real && (!write || !ms.readOnly) {
			return nil
		}
		ms.closeFolder()
	}

	entry, err := ms.folders.lookup(real)
	if err != nil {
		return err
	}
	if entry == nil {
		return newError(CodeFolderNotFound, "folder %q does not exist", real)
	}
	if entry.hasAttr(`\Noselect`) {
		return newError(CodeFolderHoldsNoMessages, "folder %q cannot hold messages", real)
	}

	readOnly := !write && ms.cfg.AllowReadOnlySelect
	if err := ms.tr.Select(real, readOnly); err != nil {
		ms.state = stateClosed
		ms.fullname = ""
		return classify(ms.cfg, "SELECT", err)
	}
	ms.state = stateOpen
	ms.fullname = real
	ms.readOnly = readOnly
	return nil
}

// closeFolder flushes pending state and returns the storage to the
// closed state. Safe to call when already closed.
func (ms *MessageStorage) closeFolder() {
	if ms.state == stateClosed {
		return
	}
	ms.flushPendingSeen()
	if err := ms.tr.Unselect(); err != nil {
		warnLog(-1, ms.fullname, "closing folder failed", "error", err)
	}
	ms.state = stateClosed
	ms.fullname = ""
	ms.readOnly = false
}

// CloseFolder closes the currently open folder, if any.
func (ms *MessageStorage) CloseFolder() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closeFolder()
}

// flushPendingSeen applies the deferred seen-mark. The folder is
// reopened read-write if needed; a failure is logged, never raised,
// since the message content was already delivered.
func (ms *MessageStorage) flushPendingSeen() {
	if ms.pendingSeenUID == 0 || ms.state != stateOpen {
		return
	}
	uid := ms.pendingSeenUID
	ms.pendingSeenUID = 0

	if ms.readOnly {
		if err := ms.tr.Select(ms.fullname, false); err != nil {
			warnLog(-1, ms.fullname, "cannot reopen folder to flush seen mark", "uid", uid, "error", err)
			return
		}
		ms.readOnly = false
	}
	if _, err := ms.tr.Exec(fmt.Sprintf(`UID STORE %d +FLAGS.SILENT (\Seen)`, uid), false, 0, nil); err != nil {
		warnLog(-1, ms.fullname, "flushing deferred seen mark failed", "uid", uid, "error", err)
	}
}

// resolve translates an external fullname into the real one.
func (ms *MessageStorage) resolve(fullname string) (real string, sep rune, err error) {
	sep, err = ms.folders.separator()
	if err != nil {
		return "", 0, err
	}
	return stripVirtualRoot(fullname, sep), sep, nil
}

// GetMessage fetches one message by UID. With markSeen set the message
// is flagged seen; a mark that cannot be written right away goes into
// the deferred slot and is retried on the next folder transition.
func (ms *MessageStorage) GetMessage(fullname string, uid int, markSeen bool) (*Message, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	real, _, err := ms.resolve(fullname)
	if err != nil {
		return nil, err
	}
	if err := ms.folders.checkRight(real, "read", RightSet.CanRead); err != nil {
		return nil, err
	}
	if err := ms.openFolder(real, true); err != nil {
		return nil, err
	}

	items := deriveFetchItems([]Field{
		FieldFlags, FieldReceivedDate, FieldSize, FieldFrom, FieldTo, FieldCC,
		FieldBCC, FieldSubject, FieldSentDate, FieldMessageID, FieldBodyStructure, FieldHeaders,
	}, FieldUID)
	cmd := fmt.Sprintf("UID FETCH %d (%s)", uid, strings.Join(items, " "))
	r, err := ms.tr.Exec(cmd, true, RetryCount, nil)
	if err != nil {
		return nil, classify(ms.cfg, "FETCH", err)
	}
	msgs, err := decodeMessages(r, fullname)
	if err != nil {
		return nil, err
	}
	var msg *Message
	for _, m := range msgs {
		if m.UID == uid {
			msg = m
			break
		}
	}
	if msg == nil {
		return nil, newError(CodeMessageRemoved, "message %d no longer exists in folder %q", uid, fullname)
	}

	// Drafts and the draft flag must agree: the flag is set on drafts
	// folder messages and cleared everywhere else. A failing flag
	// write is logged, never raised.
	if drafts, derr := ms.folders.defaultName(RoleDrafts); derr == nil {
		ms.reconcileDraftFlag(fullname, real == drafts, msg)
	}

	if markSeen && !msg.Seen() {
		if ms.readOnly {
			ms.pendingSeenUID = uid
			return msg, nil
		}
		if err := ms.folders.checkRight(real, "keep seen", RightSet.CanKeepSeen); err != nil {
			debugLog(-1, fullname, "not marking seen without the right", "uid", uid)
			return msg, nil
		}
		if _, err := ms.tr.Exec(fmt.Sprintf(`UID STORE %d +FLAGS.SILENT (\Seen)`, uid), false, 0, nil); err != nil {
			// park the mark for a retry when the folder is touched next
			ms.pendingSeenUID = uid
			warnLog(-1, fullname, "marking message seen failed, deferring", "uid", uid, "error", err)
		}
	}
	return msg, nil
}

// reconcileDraftFlag aligns a fetched message's draft flag with the
// folder it lives in.
func (ms *MessageStorage) reconcileDraftFlag(fullname string, inDrafts bool, msg *Message) {
	switch {
	case inDrafts && !msg.Draft():
		if _, err := ms.tr.Exec(fmt.Sprintf(`UID STORE %d +FLAGS.SILENT (\Draft)`, msg.UID), false, 0, nil); err != nil {
			warnLog(-1, fullname, "setting draft flag failed", "uid", msg.UID, "error", err)
			return
		}
		msg.Flags = append(msg.Flags, `\Draft`)
	case !inDrafts && msg.Draft():
		if _, err := ms.tr.Exec(fmt.Sprintf(`UID STORE %d -FLAGS.SILENT (\Draft)`, msg.UID), false, 0, nil); err != nil {
			warnLog(-1, fullname, "clearing draft flag failed", "uid", msg.UID, "error", err)
			return
		}
		flags := msg.Flags[:0]
		for _, f := range msg.Flags {
			if !strings.EqualFold(strings.TrimPrefix(f, `\`), "Draft") {
				flags = append(flags, f)
			}
		}
		msg.Flags = flags
	}
}

// ListMessages lists a slice of a folder's messages: all messages are
// discovered, the requested fields fetched, the set sorted locally and
// the half-open index window [start, end) cut out. A start beyond the
// result yields an empty slice; an end beyond it is clamped; end <= 0
// means no upper bound.
func (ms *MessageStorage) ListMessages(fullname string, fields []Field, sortBy Field, descending bool, start, end int) ([]*Message, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msgs, err := ms.fetchMatching(fullname, "ALL", fields, sortBy, descending)
	if err != nil {
		return nil, err
	}
	return sliceMessages(msgs, start, end), nil
}

// SearchMessages lists the messages matching a search term, sorted
// locally like ListMessages.
func (ms *MessageStorage) SearchMessages(fullname string, term SearchTerm, fields []Field, sortBy Field, descending bool) ([]*Message, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	query, err := term.render()
	if err != nil {
		return nil, err
	}
	return ms.fetchMatching(fullname, query, fields, sortBy, descending)
}

// fetchMatching is the shared search-then-fetch-then-sort path. The
// caller holds the lock.
func (ms *MessageStorage) fetchMatching(fullname, query string, fields []Field, sortBy Field, descending bool) ([]*Message, error) {
	real, _, err := ms.resolve(fullname)
	if err != nil {
		return nil, err
	}
	if err := ms.folders.checkRight(real, "read", RightSet.CanRead); err != nil {
		return nil, err
	}
	if err := ms.openFolder(real, false); err != nil {
		return nil, err
	}

	r, err := ms.tr.Exec("UID SEARCH "+query, true, RetryCount, nil)
	if err != nil {
		return nil, classify(ms.cfg, "SEARCH", err)
	}
	uids, err := parseSearchResponse(r)
	if err != nil {
		return nil, wrapError(err, CodeParseError, "unreadable SEARCH response for folder %q", fullname)
	}
	if len(uids) == 0 {
		return []*Message{}, nil
	}

	items := deriveFetchItems(fields, sortBy)
	cmd := "UID FETCH " + uidSet(uids) + " (" + strings.Join(items, " ") + ")"
	r, err = ms.tr.Exec(cmd, true, RetryCount, nil)
	if err != nil {
		return nil, classify(ms.cfg, "FETCH", err)
	}
	msgs, err := decodeMessages(r, fullname)
	if err != nil {
		return nil, err
	}
	sortMessagesLocal(msgs, sortBy, descending, ms.cfg.Locale)
	return msgs, nil
}

// sliceMessages cuts the index window [start, end) out of msgs.
func sliceMessages(msgs []*Message, start, end int) []*Message {
	if start < 0 {
		start = 0
	}
	if start >= len(msgs) {
		return []*Message{}
	}
	if end <= 0 || end > len(msgs) {
		end = len(msgs)
	}
	if end <= start {
		return []*Message{}
	}
	return msgs[start:end]
}

// UnreadMessages returns up to limit unseen messages of a folder,
// sorted locally. A limit of zero or less returns all of them.
func (ms *MessageStorage) UnreadMessages(fullname string, fields []Field, sortBy Field, descending bool, limit int) ([]*Message, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	real, _, err := ms.resolve(fullname)
	if err != nil {
		return nil, err
	}
	if err := ms.folders.checkRight(real, "read", RightSet.CanRead); err != nil {
		return nil, err
	}
	if err := ms.openFolder(real, false); err != nil {
		return nil, err
	}

	msgs, err := ms.cmds.unseenMessages(fullname, fields, sortBy, descending)
	if err != nil {
		return nil, classify(ms.cfg, "SEARCH UNSEEN", err)
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// DeleteMessages removes messages from a folder. Unless deleting hard
// (explicitly, globally via config, or because the folder is the trash
// itself) the messages are first copied to the trash folder; the copy
// strictly precedes any destructive step, so a failed copy leaves the
// folder untouched. The folder is closed afterwards to resynchronize
// the stale post-expunge view.
func (ms *MessageStorage) DeleteMessages(fullname string, uids []int, hard bool) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if len(uids) == 0 {
		return nil
	}
	real, sep, err := ms.resolve(fullname)
	if err != nil {
		return err
	}
	if err := ms.folders.checkRight(real, "delete messages", RightSet.CanDeleteMessages); err != nil {
		return err
	}

	trash, err := ms.folders.defaultName(RoleTrash)
	if err != nil {
		return err
	}
	softDelete := !hard && !ms.cfg.HardDeleteMessages && real != trash &&
		!strings.HasPrefix(real, trash+string(sep))

	if err := ms.openFolder(real, true); err != nil {
		return err
	}

	if softDelete {
		if err := ms.folders.checkRight(trash, "insert", RightSet.CanInsert); err != nil {
			return err
		}
		for _, rng := range compressUIDs(uids) {
			if _, err := ms.tr.Exec(`UID COPY `+rng.String()+` "`+AddSlashes.Replace(trash)+`"`, false, RetryCount, nil); err != nil {
				me := classify(ms.cfg, "COPY", err)
				if me.Code == CodeQuotaExceeded {
					return wrapError(err, CodeQuotaExceeded, "no room in trash for messages from %q; delete hard or empty the trash", fullname)
				}
				return me
			}
		}
	}

	if cmd := storeFlagsQuery(uids, Flags{Deleted: FlagAdd}); cmd != "" {
		if _, err := ms.tr.Exec(cmd, false, RetryCount, nil); err != nil {
			return classify(ms.cfg, "STORE", err)
		}
	}
	if err := ms.cmds.fastExpunge(); err != nil {
		return err
	}

	// The local view of sequence numbers is stale now.
	ms.closeFolder()
	return nil
}

// AppendMessage appends a raw RFC 822 message to a folder and returns
// no UID; servers without UIDPLUS give none. The literal is sent
// non-synchronizing so the whole command goes out in one exchange.
func (ms *MessageStorage) AppendMessage(fullname string, flags []string, raw []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	real, _, err := ms.resolve(fullname)
	if err != nil {
		return err
	}
	if err := ms.folders.checkRight(real, "insert", RightSet.CanInsert); err != nil {
		return err
	}
	return ms.append(real, flags, raw)
}

// append is AppendMessage without locking or checks, for internal use
// mid-operation.
func (ms *MessageStorage) append(real string, flags []string, raw []byte) error {
	flagList := ""
	if len(flags) > 0 {
		flagList = " (" + strings.Join(flags, " ") + ")"
	}
	cmd := fmt.Sprintf(`APPEND "%s"%s {%d+}%s%s`,
		AddSlashes.Replace(real), flagList, len(raw), nl, raw)
	if _, err := ms.tr.Exec(cmd, false, 0, nil); err != nil {
		return classify(ms.cfg, "APPEND", err)
	}
	return nil
}

// FolderReadOnly probes whether the server grants only read-only
// access to a folder. The probe selects the folder; the currently open
// folder is closed first.
func (ms *MessageStorage) FolderReadOnly(fullname string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	real, _, err := ms.resolve(fullname)
	if err != nil {
		return false, err
	}
	ms.closeFolder()
	return ms.cmds.detectReadOnly(real)
}

// ServerSortUIDs asks the server to sort all messages of a folder by
// the given SORT criteria (e.g. "DATE", "REVERSE SIZE") and returns
// the UIDs in server order. Servers without the SORT extension reject
// this with COMMAND_NOT_SUPPORTED; ListMessages sorts locally instead.
func (ms *MessageStorage) ServerSortUIDs(fullname, criteria string) ([]int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	real, _, err := ms.resolve(fullname)
	if err != nil {
		return nil, err
	}
	if err := ms.folders.checkRight(real, "read", RightSet.CanRead); err != nil {
		return nil, err
	}
	if err := ms.openFolder(real, false); err != nil {
		return nil, err
	}
	return ms.cmds.sortUIDs(criteria, []string{"ALL"})
}

// fetchRawBody fetches one message's full raw body without setting the
// seen flag. The caller must have the folder open.
func (ms *MessageStorage) fetchRawBody(fullname string, uid int) (string, error) {
	r, err := ms.tr.Exec(fmt.Sprintf("UID FETCH %d BODY.PEEK[]", uid), true, RetryCount, nil)
	if err != nil {
		return "", classify(ms.cfg, "FETCH", err)
	}
	records, err := parseFetchRecords(r)
	if err != nil {
		return "", wrapError(err, CodeParseError, "unreadable FETCH response for folder %q", fullname)
	}
	for _, rec := range records {
		for i, t := range rec.Tokens {
			if t.Type == TLiteral && strings.HasPrefix(t.Str, "BODY[") && i+1 < len(rec.Tokens) {
				return rec.Tokens[i+1].Str, nil
			}
		}
	}
	return "", newError(CodeMessageRemoved, "message %d no longer exists in folder %q", uid, fullname)
}
