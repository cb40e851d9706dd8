package imapstore

import (
	"fmt"
	"strings"
	"sync"
)

// Folder is one mailbox folder as presented at the external boundary:
// its Fullname carries the virtual root prefix.
type Folder struct {
	Fullname      string
	Name          string
	Separator     rune
	HoldsMessages bool
	HoldsFolders  bool
	Subscribed    bool
	// OwnRights is the session principal's rights on the folder. Only
	// populated when ACL support is enabled.
	OwnRights RightSet
	// Role identifies the default-folder role, RoleNone for ordinary
	// folders.
	Role Role
}

// FolderUpdate describes a folder mutation. NewParent and NewName are
// mutually exclusive; nil fields leave their aspect untouched.
type FolderUpdate struct {
	// NewParent moves the folder (and its subtree) below another
	// parent, given as an external fullname.
	NewParent *string
	// NewName renames the folder in place.
	NewName *string
	// ACL replaces the folder's full ACL when non-nil.
	ACL map[string]RightSet
	// Subscribed toggles the subscription when non-nil.
	Subscribed *bool
}

// FolderStorage is the folder-level view of one mailbox session. It is
// handed out once per session by Access and is safe for concurrent use
// to the degree the underlying transport is serialized by the caller.
type FolderStorage struct {
	tr   Transport
	cfg  *Config
	cmds commandSet

	sepMu sync.Mutex
	sep   rune

	defaultsMu      sync.Mutex
	defaultsChecked bool
	defaultNames    map[Role]string

	rightsMu sync.Mutex
	rights   map[string]RightSet
}

func newFolderStorage(tr Transport, cfg *Config) *FolderStorage {
	return &FolderStorage{
		tr:           tr,
		cfg:          cfg,
		cmds:         commandSet{tr: tr, cfg: cfg},
		defaultNames: make(map[Role]string),
		rights:       make(map[string]RightSet),
	}
}

// listEntry is one parsed LIST/LSUB response line.
type listEntry struct {
	attrs []string
	sep   rune
	name  string
}

func (e listEntry) hasAttr(name string) bool {
	for _, a := range e.attrs {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// parseListLine parses one `* LIST (\Attrs) "/" name` line. Returns
// nil for lines that are no LIST/LSUB data at all.
func parseListLine(line, verb string) *listEntry {
	tok := newLineTokenizer(line)
	if tok.next(" ") != "*" || !strings.EqualFold(tok.next(" "), verb) {
		return nil
	}
	rest := tok.rest()
	if !strings.HasPrefix(rest, "(") {
		return nil
	}
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return nil
	}
	e := &listEntry{attrs: strings.Fields(rest[1:end])}

	tok = newLineTokenizer(strings.TrimSpace(rest[end+1:]))
	sepTok := tok.quoted(" ")
	if sepTok != "" && sepTok != "NIL" {
		e.sep = rune(sepTok[0])
	}

	name := tok.rest()
	switch {
	case strings.HasPrefix(name, `"`):
		name = newLineTokenizer(name).quoted(" \t")
	case strings.HasPrefix(name, "{"):
		// literal folder name, already inlined after the size marker
		if i := strings.IndexByte(name, '\n'); i >= 0 {
			name = strings.TrimRight(name[i+1:], "\r\n")
		}
	}
	e.name = name
	return e
}

// listFolders runs LIST (or LSUB) with the given pattern and returns
// the parsed entries.
func (fs *FolderStorage) listFolders(pattern string, subscribed bool) ([]listEntry, error) {
	verb := "LIST"
	if subscribed {
		verb = "LSUB"
	}
	entries := make([]listEntry, 0)
	_, err := fs.tr.Exec(fmt.Sprintf(`%s "" "%s"`, verb, AddSlashes.Replace(pattern)), false, RetryCount, func(line []byte) error {
		if e := parseListLine(string(dropNl(line)), verb); e != nil {
			entries = append(entries, *e)
		}
		return nil
	})
	if err != nil {
		return nil, classify(fs.cfg, verb, err)
	}
	return entries, nil
}

// separator determines the hierarchy separator once per session via an
// empty LIST and caches it.
func (fs *FolderStorage) separator() (rune, error) {
	fs.sepMu.Lock()
	defer fs.sepMu.Unlock()
	if fs.sep != 0 {
		return fs.sep, nil
	}
	entries, err := fs.listFolders("", false)
	if err != nil {
		return 0, err
	}
	fs.sep = '/'
	if len(entries) > 0 && entries[0].sep != 0 {
		fs.sep = entries[0].sep
	}
	return fs.sep, nil
}

// lookup finds the LIST entry for one real fullname, nil when the
// folder does not exist.
func (fs *FolderStorage) lookup(real string) (*listEntry, error) {
	if real == "" {
		return nil, nil
	}
	entries, err := fs.listFolders(real, false)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].name == real {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// ownRights returns the session principal's rights on a folder,
// cached per fullname. Failures to determine rights deny access
// rather than granting it.
func (fs *FolderStorage) ownRights(real string) (RightSet, error) {
	fs.rightsMu.Lock()
	if r, ok := fs.rights[real]; ok {
		fs.rightsMu.Unlock()
		return r, nil
	}
	fs.rightsMu.Unlock()

	r, err := myRights(fs.tr, real)
	if err != nil {
		return "", wrapError(err, CodeNoAccess, "cannot determine rights on folder %q", real)
	}
	fs.rightsMu.Lock()
	fs.rights[real] = r
	fs.rightsMu.Unlock()
	return r, nil
}

// checkRight enforces one named right on a folder. A no-op when ACL
// support is off; an unanswerable rights query counts as denied.
func (fs *FolderStorage) checkRight(real, right string, pred func(RightSet) bool) error {
	if !fs.cfg.SupportsACL {
		return nil
	}
	r, err := fs.ownRights(real)
	if err != nil {
		return err
	}
	if !pred(r) {
		return newError(CodeNoAccess, "no %s access on folder %q for user %q", right, real, fs.cfg.Username)
	}
	return nil
}

// invalidateRights drops cached rights for a folder and its subtree.
func (fs *FolderStorage) invalidateRights(real string, sep rune) {
	fs.rightsMu.Lock()
	defer fs.rightsMu.Unlock()
	for name := range fs.rights {
		if name == real || strings.HasPrefix(name, real+string(sep)) {
			delete(fs.rights, name)
		}
	}
}

func (fs *FolderStorage) folderFromEntry(e *listEntry, sep rune) *Folder {
	name := e.name
	if i := strings.LastIndex(e.name, string(sep)); i >= 0 {
		name = e.name[i+1:]
	}
	return &Folder{
		Fullname:      addVirtualRoot(e.name, sep),
		Name:          name,
		Separator:     sep,
		HoldsMessages: !e.hasAttr(`\Noselect`),
		HoldsFolders:  !e.hasAttr(`\Noinferiors`),
		Role:          fs.roleOf(e.name),
	}
}

// isSubscribed checks one folder's subscription state via an exact
// LSUB. With subscriptions globally ignored every folder counts as
// subscribed.
func (fs *FolderStorage) isSubscribed(real string) (bool, error) {
	if fs.cfg.IgnoreSubscription {
		return true, nil
	}
	entries, err := fs.listFolders(real, true)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.name == real {
			return true, nil
		}
	}
	return false, nil
}

func (fs *FolderStorage) subscribe(real string) error {
	_, err := fs.tr.Exec(`SUBSCRIBE "`+AddSlashes.Replace(real)+`"`, false, RetryCount, nil)
	return err
}

func (fs *FolderStorage) unsubscribe(real string) error {
	_, err := fs.tr.Exec(`UNSUBSCRIBE "`+AddSlashes.Replace(real)+`"`, false, RetryCount, nil)
	return err
}

// GetFolder resolves one folder by its external fullname. The bare
// virtual root resolves to a synthetic folder that holds folders but
// no messages.
func (fs *FolderStorage) GetFolder(fullname string) (*Folder, error) {
	sep, err := fs.separator()
	if err != nil {
		return nil, err
	}
	real := stripVirtualRoot(fullname, sep)
	if real == "" {
		return &Folder{
			Fullname:     VirtualRoot,
			Name:         VirtualRoot,
			Separator:    sep,
			HoldsFolders: true,
			Subscribed:   true,
		}, nil
	}

	entry, err := fs.lookup(real)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, newError(CodeFolderNotFound, "folder %q does not exist", fullname)
	}

	f := fs.folderFromEntry(entry, sep)
	if f.Subscribed, err = fs.isSubscribed(real); err != nil {
		return nil, err
	}
	if fs.cfg.SupportsACL {
		if f.OwnRights, err = fs.ownRights(real); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ListFolders returns the direct children of a folder. The listing is
// subscription-filtered unless subscriptions are globally ignored;
// LSUB ghosts (subscribed entries whose folder no longer exists) are
// filtered out against the actual LIST result.
func (fs *FolderStorage) ListFolders(parent string) ([]*Folder, error) {
	sep, err := fs.separator()
	if err != nil {
		return nil, err
	}
	real := stripVirtualRoot(parent, sep)

	if real != "" {
		entry, err := fs.lookup(real)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, newError(CodeFolderNotFound, "folder %q does not exist", parent)
		}
		if err := fs.checkRight(real, "lookup", RightSet.CanLookup); err != nil {
			return nil, err
		}
	}

	pattern := "%"
	if real != "" {
		pattern = real + string(sep) + "%"
	}

	existing, err := fs.listFolders(pattern, false)
	if err != nil {
		return nil, err
	}
	exists := make(map[string]*listEntry, len(existing))
	for i := range existing {
		exists[existing[i].name] = &existing[i]
	}

	var names []string
	subscribed := make(map[string]bool)
	if fs.cfg.IgnoreSubscription {
		for i := range existing {
			names = append(names, existing[i].name)
			subscribed[existing[i].name] = true
		}
	} else {
		lsubbed, err := fs.listFolders(pattern, true)
		if err != nil {
			return nil, err
		}
		for _, e := range lsubbed {
			if _, ok := exists[e.name]; !ok {
				// stale subscription entry without a folder behind it
				continue
			}
			names = append(names, e.name)
			subscribed[e.name] = true
		}
	}

	folders := make([]*Folder, 0, len(names))
	for _, name := range names {
		f := fs.folderFromEntry(exists[name], sep)
		f.Subscribed = subscribed[name]
		if fs.cfg.SupportsACL {
			r, err := fs.ownRights(name)
			if err != nil {
				debugLog(-1, name, "skipping folder without determinable rights", "error", err)
				continue
			}
			if !r.CanLookup() {
				continue
			}
			f.OwnRights = r
		}
		folders = append(folders, f)
	}
	return folders, nil
}

// FolderACL reads a folder's full ACL.
func (fs *FolderStorage) FolderACL(fullname string) (map[string]RightSet, error) {
	if !fs.cfg.SupportsACL {
		return nil, newError(CodeUnsupportedOperation, "ACL support is disabled for this session")
	}
	sep, err := fs.separator()
	if err != nil {
		return nil, err
	}
	real := stripVirtualRoot(fullname, sep)
	acl, err := getACL(fs.tr, real)
	if err != nil {
		return nil, classify(fs.cfg, "GETACL", err)
	}
	return acl, nil
}

// CreateFolder creates a new folder below parent, force-subscribes it
// and applies an optional initial ACL. The new folder's display name
// must not contain the hierarchy separator.
func (fs *FolderStorage) CreateFolder(parent, name string, acl map[string]RightSet) (*Folder, error) {
	sep, err := fs.separator()
	if err != nil {
		return nil, err
	}
	if name == "" || strings.ContainsRune(name, sep) {
		return nil, newError(CodeInvalidFolderName, "invalid folder name %q: must be non-empty and free of the separator %q", name, sep)
	}

	parentReal := stripVirtualRoot(parent, sep)
	if parentReal != "" {
		entry, err := fs.lookup(parentReal)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, newError(CodeFolderNotFound, "parent folder %q does not exist", parent)
		}
		if entry.hasAttr(`\Noinferiors`) {
			return nil, newError(CodeInvalidFolderName, "folder %q cannot hold subfolders", parent)
		}
		if err := fs.checkRight(parentReal, "create", RightSet.CanCreate); err != nil {
			return nil, err
		}
	}

	real := name
	if parentReal != "" {
		real = parentReal + string(sep) + name
	}

	if existing, err := fs.lookup(real); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, newError(CodeDuplicateFolder, "folder %q already exists", addVirtualRoot(real, sep))
	}

	if acl != nil && fs.cfg.SupportsACL && !hasAdminEntry(acl) {
		return nil, newError(CodeNoAdminACL, "initial ACL of %q retains no administrator", name)
	}

	if _, err := fs.tr.Exec(`CREATE "`+AddSlashes.Replace(real)+`"`, false, RetryCount, nil); err != nil {
		return nil, classify(fs.cfg, "CREATE", err)
	}
	if !fs.cfg.IgnoreSubscription {
		if err := fs.subscribe(real); err != nil {
			warnLog(-1, real, "subscribing new folder failed", "error", err)
		}
	}

	if acl != nil && fs.cfg.SupportsACL {
		if err := fs.applyACL(real, acl); err != nil {
			return nil, err
		}
	}
	fs.invalidateRights(real, sep)
	return fs.GetFolder(addVirtualRoot(real, sep))
}

// applyACL diffs the desired ACL against the server's current one and
// issues the minimal SETACL/DELETEACL sequence.
func (fs *FolderStorage) applyACL(real string, acl map[string]RightSet) error {
	current, err := getACL(fs.tr, real)
	if err != nil {
		return classify(fs.cfg, "GETACL", err)
	}
	for id, rights := range acl {
		if current[id] == rights {
			continue
		}
		if err := setACL(fs.tr, real, id, rights); err != nil {
			return classify(fs.cfg, "SETACL", err)
		}
	}
	for id := range current {
		if _, keep := acl[id]; !keep {
			if err := deleteACL(fs.tr, real, id); err != nil {
				return classify(fs.cfg, "DELETEACL", err)
			}
		}
	}
	return nil
}

// UpdateFolder applies a folder mutation: a move, a rename, an ACL
// replacement, or a subscription toggle. Move and rename are mutually
// exclusive; validation failures surface before any command is sent.
func (fs *FolderStorage) UpdateFolder(fullname string, u FolderUpdate) (*Folder, error) {
	sep, err := fs.separator()
	if err != nil {
		return nil, err
	}
	real := stripVirtualRoot(fullname, sep)

	entry, err := fs.lookup(real)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, newError(CodeFolderNotFound, "folder %q does not exist", fullname)
	}

	if u.NewParent != nil && u.NewName != nil {
		return nil, newError(CodeMessagingError, "a folder update may move or rename, not both")
	}

	newReal := real
	switch {
	case u.NewParent != nil:
		if newReal, err = fs.moveFolder(real, *u.NewParent, sep); err != nil {
			return nil, err
		}
	case u.NewName != nil:
		if newReal, err = fs.renameFolder(real, *u.NewName, sep); err != nil {
			return nil, err
		}
	}

	if u.ACL != nil {
		if err := fs.updateACL(newReal, u.ACL, sep); err != nil {
			return nil, err
		}
	}

	if u.Subscribed != nil && !fs.cfg.IgnoreSubscription {
		if !*u.Subscribed {
			if isDefault, err := fs.isDefaultFolder(newReal); err != nil {
				return nil, err
			} else if isDefault {
				return nil, newError(CodeDefaultFolderProtected, "default folder %q cannot be unsubscribed", addVirtualRoot(newReal, sep))
			}
			err = fs.unsubscribe(newReal)
		} else {
			err = fs.subscribe(newReal)
		}
		if err != nil {
			return nil, classify(fs.cfg, "SUBSCRIBE", err)
		}
	}

	return fs.GetFolder(addVirtualRoot(newReal, sep))
}

// moveFolder relocates a folder below a new parent by recursively
// creating the tree at the target, copying messages, ACLs and
// subscription state, then deleting the source tree. The
// descendant-target check runs before any command is sent.
func (fs *FolderStorage) moveFolder(real, newParent string, sep rune) (string, error) {
	if isDefault, err := fs.isDefaultFolder(real); err != nil {
		return "", err
	} else if isDefault {
		return "", newError(CodeDefaultFolderProtected, "default folder %q cannot be moved", addVirtualRoot(real, sep))
	}

	parentReal := stripVirtualRoot(newParent, sep)
	if parentReal == real || strings.HasPrefix(parentReal, real+string(sep)) {
		return "", newError(CodeMoveToSubfolder, "cannot move folder %q below its own subtree", addVirtualRoot(real, sep))
	}

	name := real
	if i := strings.LastIndex(real, string(sep)); i >= 0 {
		name = real[i+1:]
	}
	dest := name
	if parentReal != "" {
		entry, err := fs.lookup(parentReal)
		if err != nil {
			return "", err
		}
		if entry == nil {
			return "", newError(CodeFolderNotFound, "target parent %q does not exist", newParent)
		}
		if err := fs.checkRight(parentReal, "create", RightSet.CanCreate); err != nil {
			return "", err
		}
		dest = parentReal + string(sep) + name
	}
	if existing, err := fs.lookup(dest); err != nil {
		return "", err
	} else if existing != nil {
		return "", newError(CodeDuplicateFolder, "folder %q already exists", addVirtualRoot(dest, sep))
	}
	if err := fs.checkRight(real, "delete", RightSet.CanDeleteFolder); err != nil {
		return "", err
	}

	if err := fs.copyFolderTree(real, dest, sep); err != nil {
		return "", err
	}
	if err := fs.deleteFolderTree(real, sep); err != nil {
		return "", err
	}
	fs.invalidateRights(real, sep)
	fs.invalidateRights(dest, sep)
	return dest, nil
}

// copyFolderTree recursively mirrors a folder subtree: structure,
// ACLs, subscription state and messages.
func (fs *FolderStorage) copyFolderTree(src, dst string, sep rune) error {
	if _, err := fs.tr.Exec(`CREATE "`+AddSlashes.Replace(dst)+`"`, false, RetryCount, nil); err != nil {
		return classify(fs.cfg, "CREATE", err)
	}

	if fs.cfg.SupportsACL {
		acl, err := getACL(fs.tr, src)
		if err != nil {
			warnLog(-1, src, "cannot copy ACL, keeping server defaults", "error", err)
		} else {
			for id, rights := range acl {
				if err := setACL(fs.tr, dst, id, rights); err != nil {
					return classify(fs.cfg, "SETACL", err)
				}
			}
		}
	}

	if sub, err := fs.isSubscribed(src); err == nil && sub && !fs.cfg.IgnoreSubscription {
		if err := fs.subscribe(dst); err != nil {
			warnLog(-1, dst, "subscribing moved folder failed", "error", err)
		}
	}

	entry, err := fs.lookup(src)
	if err != nil {
		return err
	}
	if entry != nil && !entry.hasAttr(`\Noselect`) {
		if err := fs.tr.Select(src, false); err != nil {
			return classify(fs.cfg, "SELECT", err)
		}
		r, err := fs.tr.Exec("UID SEARCH ALL", true, RetryCount, nil)
		if err != nil {
			return classify(fs.cfg, "SEARCH", err)
		}
		uids, err := parseSearchResponse(r)
		if err != nil {
			return wrapError(err, CodeParseError, "unreadable SEARCH response while moving %q", src)
		}
		if len(uids) > 0 {
			if _, err := fs.tr.Exec(`UID COPY `+uidSet(uids)+` "`+AddSlashes.Replace(dst)+`"`, false, RetryCount, nil); err != nil {
				return classify(fs.cfg, "COPY", err)
			}
		}
		if err := fs.tr.Unselect(); err != nil {
			warnLog(-1, src, "closing folder after move copy failed", "error", err)
		}
	}

	children, err := fs.listFolders(src+string(sep)+"%", false)
	if err != nil {
		return err
	}
	for _, child := range children {
		childName := child.name[strings.LastIndex(child.name, string(sep))+1:]
		if err := fs.copyFolderTree(child.name, dst+string(sep)+childName, sep); err != nil {
			return err
		}
	}
	return nil
}

// deleteFolderTree removes a subtree bottom-up, unsubscribing each
// node first.
func (fs *FolderStorage) deleteFolderTree(real string, sep rune) error {
	children, err := fs.listFolders(real+string(sep)+"%", false)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := fs.deleteFolderTree(child.name, sep); err != nil {
			return err
		}
	}
	if mailbox, _, selected := fs.tr.Mailbox(); selected && mailbox == real {
		if err := fs.tr.Unselect(); err != nil {
			warnLog(-1, real, "closing folder before delete failed", "error", err)
		}
	}
	if err := fs.unsubscribe(real); err != nil {
		debugLog(-1, real, "unsubscribing before delete failed", "error", err)
	}
	if _, err := fs.tr.Exec(`DELETE "`+AddSlashes.Replace(real)+`"`, false, RetryCount, nil); err != nil {
		return classify(fs.cfg, "DELETE", err)
	}
	return nil
}

// renameFolder renames a folder in place, preserving the subtree's
// per-node subscription state across the RENAME. Stale subscription
// entries under the old name are removed explicitly; nodes with no
// recorded state come out subscribed.
func (fs *FolderStorage) renameFolder(real, newName string, sep rune) (string, error) {
	if isDefault, err := fs.isDefaultFolder(real); err != nil {
		return "", err
	} else if isDefault {
		return "", newError(CodeDefaultFolderProtected, "default folder %q cannot be renamed", addVirtualRoot(real, sep))
	}
	if newName == "" || strings.ContainsRune(newName, sep) {
		return "", newError(CodeInvalidFolderName, "invalid folder name %q: must be non-empty and free of the separator %q", newName, sep)
	}

	parent := ""
	if i := strings.LastIndex(real, string(sep)); i >= 0 {
		parent = real[:i]
	}
	newReal := newName
	if parent != "" {
		newReal = parent + string(sep) + newName
		if err := fs.checkRight(parent, "create", RightSet.CanCreate); err != nil {
			return "", err
		}
	}
	if newReal == real {
		return real, nil
	}
	if existing, err := fs.lookup(newReal); err != nil {
		return "", err
	} else if existing != nil {
		return "", newError(CodeDuplicateFolder, "folder %q already exists", addVirtualRoot(newReal, sep))
	}

	// Record the subtree and each node's subscription state before the
	// server renames everything underneath in one go.
	nodes := []string{real}
	descendants, err := fs.listFolders(real+string(sep)+"*", false)
	if err != nil {
		return "", err
	}
	for _, d := range descendants {
		nodes = append(nodes, d.name)
	}
	wasSubscribed := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		sub, err := fs.isSubscribed(n)
		if err != nil {
			sub = true
		}
		wasSubscribed[n] = sub
	}

	if mailbox, _, selected := fs.tr.Mailbox(); selected && (mailbox == real || strings.HasPrefix(mailbox, real+string(sep))) {
		if err := fs.tr.Unselect(); err != nil {
			warnLog(-1, real, "closing folder before rename failed", "error", err)
		}
	}

	cmd := fmt.Sprintf(`RENAME "%s" "%s"`, AddSlashes.Replace(real), AddSlashes.Replace(newReal))
	if _, err := fs.tr.Exec(cmd, false, RetryCount, nil); err != nil {
		return "", classify(fs.cfg, "RENAME", err)
	}

	if !fs.cfg.IgnoreSubscription {
		for _, n := range nodes {
			if err := fs.unsubscribe(n); err != nil {
				debugLog(-1, n, "removing stale subscription failed", "error", err)
			}
			renamed := newReal + strings.TrimPrefix(n, real)
			if wasSubscribed[n] {
				if err := fs.subscribe(renamed); err != nil {
					warnLog(-1, renamed, "restoring subscription failed", "error", err)
				}
			}
		}
	}

	fs.invalidateRights(real, sep)
	return newReal, nil
}

// updateACL replaces a folder's ACL after validating that at least one
// administrator remains, that the session principal keeps administer
// rights, and that a default folder never loses the owner's full
// rights.
func (fs *FolderStorage) updateACL(real string, acl map[string]RightSet, sep rune) error {
	if !fs.cfg.SupportsACL {
		return newError(CodeUnsupportedOperation, "ACL support is disabled for this session")
	}
	if err := fs.checkRight(real, "administer", RightSet.CanAdminister); err != nil {
		return err
	}
	if !hasAdminEntry(acl) {
		return newError(CodeNoAdminACL, "ACL of %q retains no administrator", addVirtualRoot(real, sep))
	}
	if !acl[fs.cfg.Username].CanAdminister() {
		return newError(CodeNoAccess, "user %q may not revoke their own administer right on %q", fs.cfg.Username, addVirtualRoot(real, sep))
	}
	if isDefault, err := fs.isDefaultFolder(real); err != nil {
		return err
	} else if isDefault && !acl[fs.cfg.Username].IsFull() {
		return newError(CodeDefaultFolderProtected, "default folder %q must keep full rights for its owner", addVirtualRoot(real, sep))
	}

	if err := fs.applyACL(real, acl); err != nil {
		return err
	}
	fs.invalidateRights(real, sep)
	return nil
}

// DeleteFolder removes a folder and its subtree. Default folders are
// protected; the folder is force-unsubscribed before removal so no
// stale subscription entry survives.
func (fs *FolderStorage) DeleteFolder(fullname string) error {
	sep, err := fs.separator()
	if err != nil {
		return err
	}
	real := stripVirtualRoot(fullname, sep)
	if real == "" {
		return newError(CodeDefaultFolderProtected, "the folder root cannot be deleted")
	}

	entry, err := fs.lookup(real)
	if err != nil {
		return err
	}
	if entry == nil {
		return newError(CodeFolderNotFound, "folder %q does not exist", fullname)
	}
	if isDefault, err := fs.isDefaultFolder(real); err != nil {
		return err
	} else if isDefault {
		return newError(CodeDefaultFolderProtected, "default folder %q cannot be deleted", fullname)
	}
	if err := fs.checkRight(real, "create", RightSet.CanCreate); err != nil {
		return err
	}

	if err := fs.deleteFolderTree(real, sep); err != nil {
		return err
	}
	fs.invalidateRights(real, sep)
	return nil
}
