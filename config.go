package imapstore

import "time"

// DefaultFolderNames carries the display names of the provisioned
// default folders. Inbox is not configurable; it is always "INBOX".
type DefaultFolderNames struct {
	Drafts        string
	Sent          string
	Spam          string
	Trash         string
	ConfirmedSpam string
	ConfirmedHam  string
}

// Config is the read-only configuration surface consumed by a session.
// It is owned and loaded by the caller; this package never mutates it.
type Config struct {
	Host     string
	Port     int
	Username string
	// Password holds the LOGIN password, or the OAuth2 access token when
	// UseXOAUTH2 is set.
	Password   string
	UseXOAUTH2 bool

	// Secure enables TLS trust configuration on connect. TrustAll
	// additionally disables certificate verification; use with caution.
	Secure   bool
	TrustAll bool

	// ConnectTimeout bounds connection establishment. When set, connect
	// timeouts are classified as retryable (CodeConnectTimeout).
	ConnectTimeout time.Duration

	// SupportsACL enables rights checks and ACL read/write operations.
	SupportsACL bool

	// IgnoreSubscription makes folder listings ignore subscription
	// state and disables subscription toggling.
	IgnoreSubscription bool

	// AllowReadOnlySelect permits opening folders read-only. When off,
	// every open is read-write.
	AllowReadOnlySelect bool

	// HardDeleteMessages bypasses the soft-delete-to-trash copy.
	HardDeleteMessages bool

	// SpamEnabled turns on the spam-learning workflow and the
	// Confirmed-Spam/Confirmed-Ham default folders.
	SpamEnabled bool

	// Locale selects the collator used for client-side sorting, as a
	// BCP 47 tag ("de", "en-US", ...). Empty means English.
	Locale string

	DefaultFolders DefaultFolderNames
}

// defaultFolderNames fills empty display names with the conventional
// ones so a zero DefaultFolderNames still provisions a usable set.
func (c *Config) defaultFolderNames() DefaultFolderNames {
	n := c.DefaultFolders
	if n.Drafts == "" {
		n.Drafts = "Drafts"
	}
	if n.Sent == "" {
		n.Sent = "Sent"
	}
	if n.Spam == "" {
		n.Spam = "Spam"
	}
	if n.Trash == "" {
		n.Trash = "Trash"
	}
	if n.ConfirmedSpam == "" {
		n.ConfirmedSpam = "confirmed-spam"
	}
	if n.ConfirmedHam == "" {
		n.ConfirmedHam = "confirmed-ham"
	}
	return n
}
