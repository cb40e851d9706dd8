package imapstore

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"

	retry "github.com/StirlingMarketingGroup/go-retry"
)

// Transport is the protocol collaborator the mailbox access core is
// built on: an authenticated connection offering a tagged
// command/response exchange primitive plus the mailbox open/close
// primitives. The production implementation is *Dialer; tests inject
// fakes.
type Transport interface {
	// Exec sends one tagged command and consumes its response lines.
	// When buildResponse is set the untagged lines are returned as one
	// string; processLine, when non-nil, is called per untagged line
	// and once more for the tagged OK line that ends the command.
	Exec(command string, buildResponse bool, retryCount int, processLine func(line []byte) error) (string, error)
	// Select opens a mailbox, read-only via EXAMINE or read-write via
	// SELECT, and records it as the transport's current mailbox.
	Select(fullname string, readOnly bool) error
	// Unselect closes the current mailbox, if any.
	Unselect() error
	// Mailbox returns the currently open mailbox, its mode, and
	// whether one is open at all.
	Mailbox() (fullname string, readOnly bool, selected bool)
	// Reconnect re-establishes the connection, re-authenticates, and
	// restores the selected mailbox.
	Reconnect() error
	Close() error
	IsConnected() bool
}

var (
	nextConnNum      = 0
	nextConnNumMutex = sync.RWMutex{}
)

// Dialer is the TLS implementation of Transport. One Dialer owns one
// connection; it is not safe for concurrent use.
type Dialer struct {
	conn      *tls.Conn
	cfg       *Config
	Folder    string
	ReadOnly  bool
	Connected bool
	ConnNum   int
}

// dialHost establishes a TLS connection to the IMAP server
func dialHost(cfg *Config) (*tls.Conn, error) {
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DialTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	var tlsCfg *tls.Config
	if cfg.Secure && cfg.TrustAll {
		tlsCfg = &tls.Config{InsecureSkipVerify: true}
	}
	return tls.DialWithDialer(dialer, "tcp", cfg.Host+":"+strconv.Itoa(cfg.Port), tlsCfg)
}

// newDialer connects and authenticates a new transport for cfg. The
// connection attempt is retried; authentication is not, since repeating
// bad credentials only worsens server-side throttling.
func newDialer(cfg *Config) (d *Dialer, err error) {
	nextConnNumMutex.RLock()
	connNum := nextConnNum
	nextConnNumMutex.RUnlock()

	nextConnNumMutex.Lock()
	nextConnNum++
	nextConnNumMutex.Unlock()

	err = retry.Retry(func() error {
		debugLog(connNum, "", "establishing connection", "host", cfg.Host)
		var conn *tls.Conn
		conn, err = dialHost(cfg)
		if err != nil {
			debugLog(connNum, "", "failed to connect", "error", err)
			return err
		}
		d = &Dialer{
			conn:      conn,
			cfg:       cfg,
			Connected: true,
			ConnNum:   connNum,
		}
		return nil
	}, RetryCount, func(err error) error {
		debugLog(connNum, "", "failed to connect, retrying shortly")
		if d != nil && d.conn != nil {
			_ = d.conn.Close()
		}
		return nil
	}, func() error {
		debugLog(connNum, "", "retrying connection now")
		return nil
	})
	if err != nil {
		if d != nil && d.conn != nil {
			_ = d.conn.Close()
		}
		return nil, err
	}

	if cfg.UseXOAUTH2 {
		err = d.Authenticate(cfg.Username, cfg.Password)
	} else {
		err = d.Login(cfg.Username, cfg.Password)
	}
	if err != nil {
		debugLog(connNum, "", "authentication failed", "error", err)
		_ = d.Close()
		return nil, err
	}

	return d, nil
}

// Select opens a mailbox and records the transport's mailbox state so
// Reconnect can restore it.
func (d *Dialer) Select(fullname string, readOnly bool) (err error) {
	if readOnly {
		_, err = d.Exec(`EXAMINE "`+AddSlashes.Replace(fullname)+`"`, true, RetryCount, nil)
	} else {
		_, err = d.Exec(`SELECT "`+AddSlashes.Replace(fullname)+`"`, true, RetryCount, nil)
	}
	if err != nil {
		return err
	}
	d.Folder = fullname
	d.ReadOnly = readOnly
	return nil
}

// Unselect closes the current mailbox. A read-write mailbox is closed
// via UNSELECT where available so flagged messages are not expunged as
// a side effect; CLOSE is the fallback.
func (d *Dialer) Unselect() error {
	if d.Folder == "" {
		return nil
	}
	var err error
	if d.ReadOnly {
		_, err = d.Exec("CLOSE", false, 0, nil)
	} else {
		if _, err = d.Exec("UNSELECT", false, 0, nil); err != nil {
			_, err = d.Exec("CLOSE", false, 0, nil)
		}
	}
	d.Folder = ""
	d.ReadOnly = false
	return err
}

func (d *Dialer) Mailbox() (string, bool, bool) {
	return d.Folder, d.ReadOnly, d.Folder != ""
}

func (d *Dialer) IsConnected() bool { return d.Connected }

// Close closes the IMAP connection
func (d *Dialer) Close() (err error) {
	if d.Connected {
		debugLog(d.ConnNum, d.Folder, "closing connection")
		err = d.conn.Close()
		if err != nil {
			return fmt.Errorf("imap close: %s", err)
		}
		d.Connected = false
	}
	return err
}

// Reconnect closes and reopens the IMAP connection with
// re-authentication and mailbox restore.
func (d *Dialer) Reconnect() (err error) {
	_ = d.Close()
	debugLog(d.ConnNum, d.Folder, "reopening connection")

	conn, err := dialHost(d.cfg)
	if err != nil {
		return fmt.Errorf("imap reconnect dial: %s", err)
	}
	d.conn = conn
	d.Connected = true

	// Re-authenticate using the original method
	if d.cfg.UseXOAUTH2 {
		if err := d.Authenticate(d.cfg.Username, d.cfg.Password); err != nil {
			_ = d.conn.Close()
			d.Connected = false
			return fmt.Errorf("imap reconnect auth xoauth2: %s", err)
		}
	} else {
		if err := d.Login(d.cfg.Username, d.cfg.Password); err != nil {
			_ = d.conn.Close()
			d.Connected = false
			return fmt.Errorf("imap reconnect login: %s", err)
		}
	}

	// Restore selected mailbox state if any
	if d.Folder != "" {
		folder, readOnly := d.Folder, d.ReadOnly
		if err := d.Select(folder, readOnly); err != nil {
			return fmt.Errorf("imap reconnect select: %s", err)
		}
	}

	return nil
}
