package imapstore

import (
	"strconv"
	"strings"

	"github.com/jhillyerd/enmime/v2"
)

// CopyMessages copies messages from one folder into another. Moving
// into or out of the spam folder trains the filter on the way, when
// the spam workflow is enabled.
func (ms *MessageStorage) CopyMessages(source, dest string, uids []int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.transfer(source, dest, uids, false)
}

// MoveMessages moves messages from one folder into another: a copy
// followed by a flag-and-expunge on the source. When the removal fails
// after the copy went through, the error names the affected messages
// so the resulting duplicates can be cleaned up.
func (ms *MessageStorage) MoveMessages(source, dest string, uids []int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.transfer(source, dest, uids, true)
}

func (ms *MessageStorage) transfer(source, dest string, uids []int, move bool) error {
	if len(uids) == 0 {
		return nil
	}
	srcReal, _, err := ms.resolve(source)
	if err != nil {
		return err
	}
	dstReal, _, err := ms.resolve(dest)
	if err != nil {
		return err
	}
	if move && srcReal == dstReal {
		return newError(CodeMessagingError, "cannot move messages from folder %q onto itself", source)
	}

	if entry, err := ms.folders.lookup(dstReal); err != nil {
		return err
	} else if entry == nil {
		return newError(CodeFolderNotFound, "folder %q does not exist", dest)
	}
	if err := ms.folders.checkRight(srcReal, "read", RightSet.CanRead); err != nil {
		return err
	}
	if move {
		if err := ms.folders.checkRight(srcReal, "delete messages", RightSet.CanDeleteMessages); err != nil {
			return err
		}
	}
	if err := ms.folders.checkRight(dstReal, "insert", RightSet.CanInsert); err != nil {
		return err
	}

	if err := ms.openFolder(srcReal, move); err != nil {
		return err
	}

	// All requested messages must still exist; a transfer of a
	// partially vanished set is refused rather than silently shrunk.
	r, err := ms.tr.Exec("UID SEARCH UID "+uidSet(uids), true, RetryCount, nil)
	if err != nil {
		return classify(ms.cfg, "SEARCH", err)
	}
	found, err := parseSearchResponse(r)
	if err != nil {
		return wrapError(err, CodeParseError, "unreadable SEARCH response for folder %q", source)
	}
	existing := make(map[int]bool, len(found))
	for _, uid := range found {
		existing[uid] = true
	}
	for _, uid := range uids {
		if !existing[uid] {
			return newError(CodeMessageRemoved, "message %d no longer exists in folder %q", uid, source)
		}
	}

	// Any transfer into or out of Spam trains the filter, copy or
	// move alike. Training happens before anything gets copied or
	// removed, so a training failure leaves the mailbox untouched.
	if ms.cfg.SpamEnabled {
		spam, err := ms.folders.defaultName(RoleSpam)
		if err == nil {
			switch {
			case dstReal == spam && srcReal != spam:
				if err := ms.trainSpam(source, uids); err != nil {
					return err
				}
			case srcReal == spam && dstReal != spam:
				if err := ms.trainHam(source, uids); err != nil {
					return err
				}
			}
		}
	}

	for _, rng := range compressUIDs(uids) {
		if _, err := ms.tr.Exec(`UID COPY `+rng.String()+` "`+AddSlashes.Replace(dstReal)+`"`, false, RetryCount, nil); err != nil {
			me := classify(ms.cfg, "COPY", err)
			if me.Code == CodeQuotaExceeded {
				return wrapError(err, CodeQuotaExceeded, "no room in folder %q for messages from %q", dest, source)
			}
			return me
		}
	}

	if !move {
		return nil
	}

	if cmd := storeFlagsQuery(uids, Flags{Deleted: FlagAdd}); cmd != "" {
		if _, err := ms.tr.Exec(cmd, false, RetryCount, nil); err != nil {
			return moveAborted(ms.cfg.Username, uids, source, dest, err)
		}
	}
	if err := ms.cmds.uidExpunge(uids); err != nil {
		return moveAborted(ms.cfg.Username, uids, source, dest, err)
	}
	ms.closeFolder()
	return nil
}

// moveAborted reports a move whose copy went through but whose source
// removal did not: the messages now exist twice.
func moveAborted(user string, uids []int, source, dest string, cause error) error {
	return wrapError(cause, CodeMoveAborted,
		"move for user %q aborted: messages %s were copied to %q but could not be removed from %q",
		user, uidSet(uids), dest, source)
}

// MarkSpam reports messages as spam: they are copied into the
// confirmed-spam training folder and, when move is set, moved into the
// spam folder. Messages already living in the spam folder are left
// alone.
func (ms *MessageStorage) MarkSpam(fullname string, uids []int, move bool) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.cfg.SpamEnabled {
		return newError(CodeUnsupportedOperation, "the spam workflow is disabled for this session")
	}
	if len(uids) == 0 {
		return nil
	}
	real, _, err := ms.resolve(fullname)
	if err != nil {
		return err
	}
	spam, err := ms.folders.defaultName(RoleSpam)
	if err != nil {
		return err
	}
	if real == spam {
		return nil
	}
	if err := ms.folders.checkRight(real, "read", RightSet.CanRead); err != nil {
		return err
	}
	if err := ms.openFolder(real, move); err != nil {
		return err
	}
	if err := ms.trainSpam(fullname, uids); err != nil {
		return err
	}

	if !move {
		return nil
	}
	for _, rng := range compressUIDs(uids) {
		if _, err := ms.tr.Exec(`UID COPY `+rng.String()+` "`+AddSlashes.Replace(spam)+`"`, false, RetryCount, nil); err != nil {
			return classify(ms.cfg, "COPY", err)
		}
	}
	if cmd := storeFlagsQuery(uids, Flags{Deleted: FlagAdd}); cmd != "" {
		if _, err := ms.tr.Exec(cmd, false, RetryCount, nil); err != nil {
			return classify(ms.cfg, "STORE", err)
		}
	}
	if err := ms.cmds.uidExpunge(uids); err != nil {
		return err
	}
	ms.closeFolder()
	return nil
}

// MarkHam reports messages as ham, i.e. wrongly classified spam. Only
// messages in the spam folder qualify; everything else is a no-op.
// Spam-filter wrappers are unwrapped: when a message turns out to be a
// report envelope around the original mail, the nested original is
// what lands in the training folder and, when move is set, back in the
// inbox. Training appends strictly precede any removal.
func (ms *MessageStorage) MarkHam(fullname string, uids []int, move bool) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.cfg.SpamEnabled {
		return newError(CodeUnsupportedOperation, "the spam workflow is disabled for this session")
	}
	if len(uids) == 0 {
		return nil
	}
	real, _, err := ms.resolve(fullname)
	if err != nil {
		return err
	}
	spam, err := ms.folders.defaultName(RoleSpam)
	if err != nil {
		return err
	}
	if real != spam {
		return nil
	}
	if err := ms.folders.checkRight(real, "read", RightSet.CanRead); err != nil {
		return err
	}
	if err := ms.openFolder(real, move); err != nil {
		return err
	}

	ham, err := ms.folders.defaultName(RoleConfirmedHam)
	if err != nil {
		return err
	}
	inbox, err := ms.folders.defaultName(RoleInbox)
	if err != nil {
		return err
	}

	for _, uid := range uids {
		nested, err := ms.extractNested(fullname, uid)
		if err != nil {
			return err
		}
		if nested != nil {
			if err := ms.append(ham, nil, nested); err != nil {
				return err
			}
			if move {
				if err := ms.append(inbox, nil, nested); err != nil {
					return err
				}
			}
			continue
		}
		targets := []string{ham}
		if move {
			targets = append(targets, inbox)
		}
		for _, target := range targets {
			if _, err := ms.tr.Exec(`UID COPY `+strconv.Itoa(uid)+` "`+AddSlashes.Replace(target)+`"`, false, RetryCount, nil); err != nil {
				return classify(ms.cfg, "COPY", err)
			}
		}
	}

	if !move {
		return nil
	}
	if cmd := storeFlagsQuery(uids, Flags{Deleted: FlagAdd}); cmd != "" {
		if _, err := ms.tr.Exec(cmd, false, RetryCount, nil); err != nil {
			return classify(ms.cfg, "STORE", err)
		}
	}
	if err := ms.cmds.uidExpunge(uids); err != nil {
		return err
	}
	ms.closeFolder()
	return nil
}

// trainSpam copies messages into the confirmed-spam folder. The
// folder must already be open on the transport.
func (ms *MessageStorage) trainSpam(fullname string, uids []int) error {
	confirmed, err := ms.folders.defaultName(RoleConfirmedSpam)
	if err != nil {
		return err
	}
	for _, rng := range compressUIDs(uids) {
		if _, err := ms.tr.Exec(`UID COPY `+rng.String()+` "`+AddSlashes.Replace(confirmed)+`"`, false, RetryCount, nil); err != nil {
			return classify(ms.cfg, "COPY", err)
		}
	}
	return nil
}

// trainHam feeds messages into the confirmed-ham folder, unwrapping
// spam-report envelopes where present.
func (ms *MessageStorage) trainHam(fullname string, uids []int) error {
	ham, err := ms.folders.defaultName(RoleConfirmedHam)
	if err != nil {
		return err
	}
	for _, uid := range uids {
		nested, err := ms.extractNested(fullname, uid)
		if err != nil {
			return err
		}
		if nested != nil {
			if err := ms.append(ham, nil, nested); err != nil {
				return err
			}
			continue
		}
		if _, err := ms.tr.Exec(`UID COPY `+strconv.Itoa(uid)+` "`+AddSlashes.Replace(ham)+`"`, false, RetryCount, nil); err != nil {
			return classify(ms.cfg, "COPY", err)
		}
	}
	return nil
}

// extractNested fetches a message and, when it carries an embedded
// message/rfc822 part, returns that part's raw bytes. Returns nil for
// plain messages and for bodies too damaged to parse; those are used
// as they are.
func (ms *MessageStorage) extractNested(fullname string, uid int) ([]byte, error) {
	raw, err := ms.fetchRawBody(fullname, uid)
	if err != nil {
		return nil, err
	}
	env, perr := enmime.ReadEnvelope(strings.NewReader(raw))
	if perr != nil {
		debugLog(-1, fullname, "message body could not be parsed, training with the wrapper", "uid", uid, "error", perr)
		return nil, nil
	}
	parts := append([]*enmime.Part{}, env.Attachments...)
	parts = append(parts, env.OtherParts...)
	parts = append(parts, env.Inlines...)
	for _, p := range parts {
		if strings.EqualFold(p.ContentType, "message/rfc822") && len(p.Content) > 0 {
			return p.Content, nil
		}
	}
	return nil, nil
}
