package imapstore

import "strings"

// Role identifies a default folder.
type Role int

const (
	RoleNone Role = iota
	RoleInbox
	RoleDrafts
	RoleSent
	RoleSpam
	RoleTrash
	RoleConfirmedSpam
	RoleConfirmedHam
)

func (r Role) String() string {
	switch r {
	case RoleInbox:
		return "inbox"
	case RoleDrafts:
		return "drafts"
	case RoleSent:
		return "sent"
	case RoleSpam:
		return "spam"
	case RoleTrash:
		return "trash"
	case RoleConfirmedSpam:
		return "confirmed-spam"
	case RoleConfirmedHam:
		return "confirmed-ham"
	}
	return "none"
}

// EnsureDefaultFolders checks and, where missing, provisions the
// standard folders for this account: Inbox plus drafts, sent, spam and
// trash, and the two spam-training folders when the spam workflow is
// enabled. The check runs at most once per session; concurrent callers
// block until the first run finishes.
//
// A single folder failing to provision is logged and skipped, not
// raised: the account stays usable with the folders that do exist.
func (fs *FolderStorage) EnsureDefaultFolders() error {
	fs.defaultsMu.Lock()
	defer fs.defaultsMu.Unlock()
	if fs.defaultsChecked {
		return nil
	}

	sep, err := fs.separator()
	if err != nil {
		return err
	}

	inbox, err := fs.lookup("INBOX")
	if err != nil {
		return err
	}
	if inbox == nil {
		return newError(CodeFolderNotFound, "account of %q has no INBOX", fs.cfg.Username)
	}
	if sub, err := fs.isSubscribed("INBOX"); err == nil && !sub && !fs.cfg.IgnoreSubscription {
		if err := fs.subscribe("INBOX"); err != nil {
			warnLog(-1, "INBOX", "subscribing INBOX failed", "error", err)
		}
	}
	fs.defaultNames[RoleInbox] = "INBOX"

	// Namespace detection: default folders live next to INBOX when the
	// personal namespace is the root, below it otherwise. INBOX not
	// allowing inferiors, or sibling folders already existing, both
	// mean the root layout.
	prefix := "INBOX" + string(sep)
	if inbox.hasAttr(`\Noinferiors`) {
		prefix = ""
	} else {
		siblings, err := fs.listFolders("%", false)
		if err != nil {
			return err
		}
		for _, s := range siblings {
			if !strings.EqualFold(s.name, "INBOX") {
				prefix = ""
				break
			}
		}
	}

	type roleName struct {
		role Role
		name string
	}
	names := fs.cfg.defaultFolderNames()
	wanted := []roleName{
		{RoleDrafts, names.Drafts},
		{RoleSent, names.Sent},
		{RoleSpam, names.Spam},
		{RoleTrash, names.Trash},
	}
	if fs.cfg.SpamEnabled {
		wanted = append(wanted,
			roleName{RoleConfirmedSpam, names.ConfirmedSpam},
			roleName{RoleConfirmedHam, names.ConfirmedHam},
		)
	}

	for _, w := range wanted {
		real := prefix + w.name
		entry, err := fs.lookup(real)
		if err != nil {
			return err
		}
		if entry == nil {
			if _, err := fs.tr.Exec(`CREATE "`+AddSlashes.Replace(real)+`"`, false, RetryCount, nil); err != nil {
				warnLog(-1, real, "provisioning default folder failed", "role", w.role.String(), "error", err)
				continue
			}
		}
		if !fs.cfg.IgnoreSubscription {
			if sub, err := fs.isSubscribed(real); err == nil && !sub {
				if err := fs.subscribe(real); err != nil {
					warnLog(-1, real, "subscribing default folder failed", "error", err)
				}
			}
		}
		fs.defaultNames[w.role] = real
	}

	fs.defaultsChecked = true
	return nil
}

// defaultName returns a default folder's real fullname, bootstrapping
// the default folders first if that has not happened yet.
func (fs *FolderStorage) defaultName(role Role) (string, error) {
	if err := fs.EnsureDefaultFolders(); err != nil {
		return "", err
	}
	fs.defaultsMu.Lock()
	defer fs.defaultsMu.Unlock()
	name, ok := fs.defaultNames[role]
	if !ok {
		if (role == RoleConfirmedSpam || role == RoleConfirmedHam) && !fs.cfg.SpamEnabled {
			return "", newError(CodeUnsupportedOperation, "the spam workflow is disabled for this session")
		}
		return "", newError(CodeFolderNotFound, "no %s folder is provisioned", role)
	}
	return name, nil
}

// roleOf maps a real fullname onto its default-folder role without
// triggering the bootstrap; before the first EnsureDefaultFolders run
// every folder reads as RoleNone.
func (fs *FolderStorage) roleOf(real string) Role {
	fs.defaultsMu.Lock()
	defer fs.defaultsMu.Unlock()
	for role, name := range fs.defaultNames {
		if name == real {
			return role
		}
	}
	return RoleNone
}

// isDefaultFolder reports whether a real fullname is one of the
// provisioned default folders, bootstrapping them if needed.
func (fs *FolderStorage) isDefaultFolder(real string) (bool, error) {
	if err := fs.EnsureDefaultFolders(); err != nil {
		return false, err
	}
	return fs.roleOf(real) != RoleNone, nil
}

// InboxFolder returns the external fullname of the inbox.
func (fs *FolderStorage) InboxFolder() (string, error) { return fs.roleFullname(RoleInbox) }

// DraftsFolder returns the external fullname of the drafts folder.
func (fs *FolderStorage) DraftsFolder() (string, error) { return fs.roleFullname(RoleDrafts) }

// SentFolder returns the external fullname of the sent folder.
func (fs *FolderStorage) SentFolder() (string, error) { return fs.roleFullname(RoleSent) }

// SpamFolder returns the external fullname of the spam folder.
func (fs *FolderStorage) SpamFolder() (string, error) { return fs.roleFullname(RoleSpam) }

// TrashFolder returns the external fullname of the trash folder.
func (fs *FolderStorage) TrashFolder() (string, error) { return fs.roleFullname(RoleTrash) }

// ConfirmedSpamFolder returns the external fullname of the
// spam-training folder for confirmed spam. Only available with the
// spam workflow enabled.
func (fs *FolderStorage) ConfirmedSpamFolder() (string, error) {
	return fs.roleFullname(RoleConfirmedSpam)
}

// ConfirmedHamFolder returns the external fullname of the
// spam-training folder for confirmed ham. Only available with the
// spam workflow enabled.
func (fs *FolderStorage) ConfirmedHamFolder() (string, error) {
	return fs.roleFullname(RoleConfirmedHam)
}

func (fs *FolderStorage) roleFullname(role Role) (string, error) {
	real, err := fs.defaultName(role)
	if err != nil {
		return "", err
	}
	sep, err := fs.separator()
	if err != nil {
		return "", err
	}
	return addVirtualRoot(real, sep), nil
}
