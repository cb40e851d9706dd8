package imapstore

import (
	"fmt"
	"strings"
)

// RightSet is a folder's rights string for one identifier, using the
// IMAP ACL letters. RFC 4314 letters are accepted alongside their RFC
// 2086 predecessors ('c'/'d' vs 'k'/'x'/'t'/'e').
type RightSet string

// fullRights is what the owning principal of a default folder must
// always retain.
const fullRights RightSet = "lrswipkxtea"

func (r RightSet) has(letters string) bool {
	for i := 0; i < len(letters); i++ {
		if strings.IndexByte(string(r), letters[i]) >= 0 {
			return true
		}
	}
	return false
}

// CanLookup reports whether the folder is visible to LIST/LSUB.
func (r RightSet) CanLookup() bool { return r.has("l") }

// CanRead reports whether the folder may be selected and its messages read.
func (r RightSet) CanRead() bool { return r.has("r") }

// CanKeepSeen reports whether seen state may be persisted.
func (r RightSet) CanKeepSeen() bool { return r.has("s") }

// CanInsert reports whether messages may be appended or copied in.
func (r RightSet) CanInsert() bool { return r.has("i") }

// CanCreate reports whether subfolders may be created below the folder.
func (r RightSet) CanCreate() bool { return r.has("ck") }

// CanDeleteMessages reports whether messages may be flagged deleted and
// expunged.
func (r RightSet) CanDeleteMessages() bool { return r.has("dte") }

// CanDeleteFolder reports whether the folder itself may be removed.
func (r RightSet) CanDeleteFolder() bool { return r.has("dx") }

// CanAdminister reports whether the ACL itself may be changed.
func (r RightSet) CanAdminister() bool { return r.has("a") }

// IsFull reports whether the set covers every right of fullRights,
// letter equivalences included.
func (r RightSet) IsFull() bool {
	for _, l := range []string{"l", "r", "s", "w", "i", "p", "ck", "dx", "dte", "a"} {
		if !r.has(l) {
			return false
		}
	}
	return true
}

// hasAdminEntry reports whether at least one entry of an ACL retains
// the administer right. Every ACL mutation must leave one behind.
func hasAdminEntry(acl map[string]RightSet) bool {
	for _, rights := range acl {
		if rights.CanAdminister() {
			return true
		}
	}
	return false
}

// getACL reads a folder's full ACL via GETACL.
func getACL(tr Transport, fullname string) (map[string]RightSet, error) {
	acl := make(map[string]RightSet)
	_, err := tr.Exec(`GETACL "`+AddSlashes.Replace(fullname)+`"`, false, RetryCount, func(line []byte) error {
		tok := newLineTokenizer(string(dropNl(line)))
		if tok.next(" ") != "*" || !strings.EqualFold(tok.next(" "), "ACL") {
			return nil
		}
		tok.quoted(" ") // mailbox echo
		for {
			id := tok.quoted(" ")
			if id == "" {
				break
			}
			rights := tok.quoted(" ")
			acl[id] = RightSet(rights)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acl, nil
}

// setACL replaces the rights of one identifier via SETACL.
func setACL(tr Transport, fullname, identifier string, rights RightSet) error {
	cmd := fmt.Sprintf(`SETACL "%s" "%s" %s`,
		AddSlashes.Replace(fullname), AddSlashes.Replace(identifier), string(rights))
	_, err := tr.Exec(cmd, false, RetryCount, nil)
	return err
}

// deleteACL removes one identifier's entry via DELETEACL.
func deleteACL(tr Transport, fullname, identifier string) error {
	cmd := fmt.Sprintf(`DELETEACL "%s" "%s"`,
		AddSlashes.Replace(fullname), AddSlashes.Replace(identifier))
	_, err := tr.Exec(cmd, false, RetryCount, nil)
	return err
}

// myRights queries the session principal's own rights on a folder.
func myRights(tr Transport, fullname string) (RightSet, error) {
	var rights RightSet
	found := false
	_, err := tr.Exec(`MYRIGHTS "`+AddSlashes.Replace(fullname)+`"`, false, RetryCount, func(line []byte) error {
		tok := newLineTokenizer(string(dropNl(line)))
		if tok.next(" ") != "*" || !strings.EqualFold(tok.next(" "), "MYRIGHTS") {
			return nil
		}
		tok.quoted(" ") // mailbox echo
		rights = RightSet(tok.quoted(" "))
		found = true
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no MYRIGHTS data for %q", fullname)
	}
	return rights, nil
}
