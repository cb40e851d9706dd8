package imapstore

import (
	"strings"
)

// commandSet holds the raw protocol operations the transport's
// standard primitives do not cover. Every operation sends one tagged
// command through Exec and interprets the response lines it is handed;
// nothing here mutates shared response state.
type commandSet struct {
	tr  Transport
	cfg *Config
}

// forceNoop fires a NOOP and swallows any failure. Callers use it to
// nudge the server into sending pending untagged updates and to probe
// liveness; they cannot act on a failure either way.
func (c commandSet) forceNoop() {
	if _, err := c.tr.Exec("NOOP", false, 0, nil); err != nil {
		debugLog(-1, "", "noop failed", "error", err)
	}
}

// sortUIDs runs a server-side UID SORT with the given criteria over
// exactly one message-set argument and returns the UIDs in
// server-determined order.
func (c commandSet) sortUIDs(criteria string, msgSets []string) ([]int, error) {
	if len(msgSets) != 1 {
		return nil, newError(CodeMessagingError, "SORT requires exactly one message set, got %d", len(msgSets))
	}

	uids := make([]int, 0)
	cmd := "UID SORT (" + criteria + ") UTF-8 " + msgSets[0]
	_, err := c.tr.Exec(cmd, false, 0, func(line []byte) error {
		tok := newLineTokenizer(string(dropNl(line)))
		if tok.next(" ") != "*" || !strings.EqualFold(tok.next(" "), "SORT") {
			return nil
		}
		nums, err := parseSearchResponse("* SEARCH " + tok.rest())
		if err != nil {
			return err
		}
		uids = append(uids, nums...)
		return nil
	})
	if err != nil {
		return nil, wrapError(err, CodeCommandNotSupported, "server rejected the SORT command")
	}
	return uids, nil
}

// unseenMessages discovers unseen messages: a SEARCH UNSEEN collects
// the matching sequence numbers; only when at least one matched are
// the requested fields fetched, and the fetched set is sorted locally
// with a locale-aware comparator. An empty match yields an empty,
// non-nil result.
func (c commandSet) unseenMessages(fullname string, fields []Field, sortBy Field, desc bool) ([]*Message, error) {
	r, err := c.tr.Exec("SEARCH UNSEEN", true, RetryCount, nil)
	if err != nil {
		return nil, err
	}
	seqs, err := parseSearchResponse(r)
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return []*Message{}, nil
	}

	items := deriveFetchItems(fields, sortBy)
	fetchCmd := "FETCH " + uidSet(seqs) + " (" + strings.Join(items, " ") + ")"
	r, err = c.tr.Exec(fetchCmd, true, RetryCount, nil)
	if err != nil {
		return nil, err
	}
	msgs, err := decodeMessages(r, fullname)
	if err != nil {
		return nil, err
	}
	sortMessagesLocal(msgs, sortBy, desc, c.cfg.Locale)
	return msgs, nil
}

// fastExpunge issues EXPUNGE directly instead of going through
// per-message primitives, skipping incremental cache churn. An "empty
// mailbox" refusal counts as success. The local view of the mailbox is
// stale afterwards; the caller must close and reopen the folder.
func (c commandSet) fastExpunge() error {
	_, err := c.tr.Exec("EXPUNGE", false, 0, nil)
	return classifyExpungeError(err)
}

// uidExpunge removes exactly the given deleted messages, one command
// per compressed UID range. "Empty mailbox" refusals are skipped; the
// first real failure stops the run.
func (c commandSet) uidExpunge(uids []int) error {
	for _, r := range compressUIDs(uids) {
		_, err := c.tr.Exec("UID EXPUNGE "+r.String(), false, 0, nil)
		if err = classifyExpungeError(err); err != nil {
			return err
		}
	}
	return nil
}

func classifyExpungeError(err error) error {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error())
	if strings.Contains(text, "empty") {
		// nothing left to expunge; idempotent success
		return nil
	}
	if strings.Contains(text, "invalid system flag") {
		return wrapError(err, CodeInvalidSystemFlag, "server rejected the deleted flag")
	}
	return wrapError(err, CodeProtocolError, "expunge failed")
}

// detectReadOnly probes whether a folder only grants read-only access
// by running a SELECT and inspecting the response for a read-only
// marker (the "[READ-ONLY]" code or an empty PERMANENTFLAGS list).
// Servers may put the code on an untagged line or on the tagged OK
// itself, so every line gets scanned.
func (c commandSet) detectReadOnly(fullname string) (bool, error) {
	var readOnly bool
	_, err := c.tr.Exec(`SELECT "`+AddSlashes.Replace(fullname)+`"`, false, 0, func(line []byte) error {
		text := strings.ToUpper(string(line))
		if strings.Contains(text, "READ-ONLY") || strings.Contains(text, "[PERMANENTFLAGS ()]") {
			readOnly = true
		}
		return nil
	})
	if err != nil {
		return false, wrapError(err, CodeReadOnlyCheckFailed, "cannot determine read-only state of %q", fullname)
	}
	return readOnly, nil
}
