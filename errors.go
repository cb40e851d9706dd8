package imapstore

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"

	humanize "github.com/dustin/go-humanize"
)

// Category groups error codes by how callers should react to them.
type Category int

const (
	// CategoryError is an unspecific processing failure.
	CategoryError Category = iota
	// CategoryUserInput marks failures caused by invalid caller input.
	CategoryUserInput
	// CategoryPermission marks denied or unverifiable access rights.
	CategoryPermission
	// CategoryConnectivity marks network and session-state failures.
	CategoryConnectivity
	// CategoryTryAgain marks transient failures where a retry is sane.
	CategoryTryAgain
	// CategoryProtocol marks unexpected or unsupported server behavior.
	CategoryProtocol
)

func (c Category) String() string {
	switch c {
	case CategoryUserInput:
		return "USER_INPUT"
	case CategoryPermission:
		return "PERMISSION_DENIED"
	case CategoryConnectivity:
		return "CONNECTIVITY"
	case CategoryTryAgain:
		return "TRY_AGAIN"
	case CategoryProtocol:
		return "PROTOCOL"
	}
	return "ERROR"
}

// Code identifies one failure mode of the mailbox access core. The set
// is closed: every error leaving this package carries exactly one.
type Code int

const (
	// CodeMessagingError is the catch-all for unclassified failures.
	CodeMessagingError Code = iota + 1
	CodeNotConnected
	CodeInvalidCredentials
	CodeLoginDelayed
	CodeFolderClosed
	CodeFolderNotFound
	CodeFolderReadOnly
	CodeIllegalWrite
	CodeMessageRemoved
	CodeUnsupportedOperation
	CodeParseError
	CodeInvalidAddress
	CodeMessageTooLarge
	CodeSendFailed
	CodeBindError
	CodeConnectError
	CodeConnectTimeout
	CodeNoRouteToHost
	CodePortUnreachable
	CodeBrokenConnection
	CodeUnknownHost
	CodeNoAccess
	CodeQuotaExceeded
	CodeMoveAborted
	CodeDuplicateFolder
	CodeInvalidFolderName
	CodeNoAdminACL
	CodeDefaultFolderProtected
	CodeFolderHoldsNoMessages
	CodeMoveToSubfolder
	CodeProtocolError
	CodeCommandNotSupported
	CodeInvalidSystemFlag
	CodeReadOnlyCheckFailed
)

var codeNames = map[Code]string{
	CodeMessagingError:         "MESSAGING_ERROR",
	CodeNotConnected:           "NOT_CONNECTED",
	CodeInvalidCredentials:     "INVALID_CREDENTIALS",
	CodeLoginDelayed:           "LOGIN_DELAYED",
	CodeFolderClosed:           "FOLDER_CLOSED",
	CodeFolderNotFound:         "FOLDER_NOT_FOUND",
	CodeFolderReadOnly:         "FOLDER_READ_ONLY",
	CodeIllegalWrite:           "ILLEGAL_WRITE",
	CodeMessageRemoved:         "MESSAGE_REMOVED",
	CodeUnsupportedOperation:   "UNSUPPORTED_OPERATION",
	CodeParseError:             "PARSE_ERROR",
	CodeInvalidAddress:         "INVALID_ADDRESS",
	CodeMessageTooLarge:        "MESSAGE_TOO_LARGE",
	CodeSendFailed:             "SEND_FAILED",
	CodeBindError:              "BIND_ERROR",
	CodeConnectError:           "CONNECT_ERROR",
	CodeConnectTimeout:         "CONNECT_TIMEOUT",
	CodeNoRouteToHost:          "NO_ROUTE_TO_HOST",
	CodePortUnreachable:        "PORT_UNREACHABLE",
	CodeBrokenConnection:       "BROKEN_CONNECTION",
	CodeUnknownHost:            "UNKNOWN_HOST",
	CodeNoAccess:               "NO_ACCESS",
	CodeQuotaExceeded:          "QUOTA_EXCEEDED",
	CodeMoveAborted:            "MOVE_ABORTED",
	CodeDuplicateFolder:        "DUPLICATE_FOLDER",
	CodeInvalidFolderName:      "INVALID_FOLDER_NAME",
	CodeNoAdminACL:             "NO_ADMIN_ACL",
	CodeDefaultFolderProtected: "NO_DEFAULT_FOLDER_UPDATE",
	CodeFolderHoldsNoMessages:  "FOLDER_HOLDS_NO_MESSAGES",
	CodeMoveToSubfolder:        "NO_MOVE_TO_SUBFOLDER",
	CodeProtocolError:          "PROTOCOL_ERROR",
	CodeCommandNotSupported:    "COMMAND_NOT_SUPPORTED",
	CodeInvalidSystemFlag:      "INVALID_SYSTEM_FLAG",
	CodeReadOnlyCheckFailed:    "READ_ONLY_CHECK_FAILED",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CODE_%d", int(c))
}

// category returns the default category for a code. A few call sites
// override it per instance (e.g. connect timeouts become TRY_AGAIN when
// a connect timeout is configured).
func (c Code) category() Category {
	switch c {
	case CodeInvalidCredentials, CodeParseError, CodeInvalidAddress,
		CodeInvalidFolderName, CodeDuplicateFolder, CodeMoveToSubfolder,
		CodeMessageTooLarge:
		return CategoryUserInput
	case CodeNoAccess, CodeNoAdminACL, CodeDefaultFolderProtected:
		return CategoryPermission
	case CodeNotConnected, CodeFolderClosed, CodeBindError, CodeConnectError,
		CodeConnectTimeout, CodeNoRouteToHost, CodePortUnreachable,
		CodeBrokenConnection, CodeUnknownHost:
		return CategoryConnectivity
	case CodeLoginDelayed:
		return CategoryTryAgain
	case CodeUnsupportedOperation, CodeProtocolError, CodeCommandNotSupported,
		CodeInvalidSystemFlag, CodeReadOnlyCheckFailed:
		return CategoryProtocol
	}
	return CategoryError
}

// MailError is the single error type surfaced by this package. It is
// immutable after construction.
type MailError struct {
	Code     Code
	Category Category
	Message  string
	Cause    error
}

func (e *MailError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *MailError) Unwrap() error { return e.Cause }

// Is makes errors.Is match on equal codes, so callers can compare
// against &MailError{Code: CodeFolderNotFound}.
func (e *MailError) Is(target error) bool {
	var t *MailError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// newError builds a MailError with the code's default category.
func newError(code Code, format string, args ...any) *MailError {
	return &MailError{
		Code:     code,
		Category: code.category(),
		Message:  fmt.Sprintf(format, args...),
	}
}

// wrapError builds a MailError keeping the original cause.
func wrapError(cause error, code Code, format string, args ...any) *MailError {
	return &MailError{
		Code:     code,
		Category: code.category(),
		Message:  fmt.Sprintf(format, args...),
		Cause:    cause,
	}
}

// IsCode reports whether err carries the given domain error code.
func IsCode(err error, code Code) bool {
	var me *MailError
	return errors.As(err, &me) && me.Code == code
}

// AsMailError extracts the domain error from err, or nil.
func AsMailError(err error) *MailError {
	var me *MailError
	if errors.As(err, &me) {
		return me
	}
	return nil
}

// Substrings indicating that an authentication failure is transient
// rather than a credential problem.
var temporaryAuthHints = []string{
	"temporar", "try again", "too many", "please wait", "in use",
	"unavailable",
}

var authFailureHints = []string{
	"authenticationfailed", "authentication failed", "invalid credentials",
	"login failed", "authorizationfailed", "login incorrect",
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// parseByteLimit best-effort extracts a byte count from server text
// like "message exceeds maximum size 26214400".
func parseByteLimit(s string) (uint64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	})
	for i := len(fields) - 1; i >= 0; i-- {
		if n, err := strconv.ParseUint(fields[i], 10, 64); err == nil && n > 1024 {
			return n, true
		}
	}
	return 0, false
}

// classify funnels any transport-level failure into the closed
// taxonomy. Predicates are evaluated in a fixed priority order; the
// first match wins and the original cause is always preserved. op is a
// short description of what was being attempted ("dial", "login",
// "select", ...) used in the formatted message.
func classify(cfg *Config, op string, err error) *MailError {
	if err == nil {
		return nil
	}
	var me *MailError
	if errors.As(err, &me) {
		return me
	}

	// Network-layer causes first: they are typed, not text.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return wrapError(err, CodeUnknownHost, "cannot resolve host %q", dnsErr.Name)
	}
	switch {
	case errors.Is(err, syscall.EADDRINUSE), errors.Is(err, syscall.EADDRNOTAVAIL):
		return wrapError(err, CodeBindError, "cannot bind local socket during %s", op)
	case errors.Is(err, syscall.ECONNREFUSED):
		return wrapError(err, CodePortUnreachable, "remote port not reachable during %s", op)
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return wrapError(err, CodeNoRouteToHost, "no route to host during %s", op)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return wrapError(err, CodeBrokenConnection, "connection broke during %s", op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		e := wrapError(err, CodeConnectTimeout, "timeout during %s", op)
		if cfg == nil || cfg.ConnectTimeout == 0 {
			// Without an explicit connect timeout a retry is not known
			// to be sane; keep the connectivity category.
			e.Category = CategoryConnectivity
		} else {
			e.Category = CategoryTryAgain
		}
		return e
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return wrapError(err, CodeConnectError, "cannot connect during %s", op)
		}
		return wrapError(err, CodeBrokenConnection, "connection failure during %s", op)
	}

	// The remainder is classified on server/response text.
	text := strings.ToLower(err.Error())

	if containsAny(text, authFailureHints) {
		if containsAny(text, temporaryAuthHints) {
			return wrapError(err, CodeLoginDelayed, "login temporarily refused for %s", op)
		}
		return wrapError(err, CodeInvalidCredentials, "invalid credentials during %s", op)
	}
	if strings.Contains(text, "[toobig]") || strings.Contains(text, "exceeds size") ||
		strings.Contains(text, "message too large") || strings.Contains(text, " 552") {
		if limit, ok := parseByteLimit(text); ok {
			return wrapError(err, CodeMessageTooLarge, "message exceeds the size limit of %s", humanize.Bytes(limit))
		}
		return wrapError(err, CodeMessageTooLarge, "message exceeds the size limit")
	}
	if strings.Contains(text, "recipient") && (strings.Contains(text, "rejected") || strings.Contains(text, "refused")) {
		return wrapError(err, CodeSendFailed, "message not accepted for all recipients during %s", op)
	}
	if strings.Contains(text, "[overquota]") || strings.Contains(text, "quota") {
		return wrapError(err, CodeQuotaExceeded, "storage quota exceeded during %s", op)
	}
	if strings.Contains(text, "[nonexistent]") || strings.Contains(text, "no such mailbox") ||
		strings.Contains(text, "does not exist") || strings.Contains(text, "doesn't exist") {
		return wrapError(err, CodeFolderNotFound, "mailbox not found during %s", op)
	}
	if strings.Contains(text, "[alreadyexists]") || strings.Contains(text, "already exists") {
		return wrapError(err, CodeDuplicateFolder, "mailbox already exists during %s", op)
	}
	if strings.Contains(text, "[noperm]") || strings.Contains(text, "permission denied") ||
		strings.Contains(text, "acl") {
		return wrapError(err, CodeNoAccess, "access denied during %s", op)
	}
	if strings.Contains(text, "read-only") || strings.Contains(text, "read only") {
		return wrapError(err, CodeFolderReadOnly, "mailbox is read-only during %s", op)
	}
	if strings.Contains(text, "[expunged]") || strings.Contains(text, "message removed") ||
		strings.Contains(text, "no longer exist") {
		return wrapError(err, CodeMessageRemoved, "message no longer exists during %s", op)
	}
	if strings.Contains(text, "invalid address") || strings.Contains(text, "bad address") {
		return wrapError(err, CodeInvalidAddress, "invalid email address during %s", op)
	}
	if strings.Contains(text, "parse") || strings.Contains(text, "bad syntax") ||
		strings.Contains(text, "malformed") {
		return wrapError(err, CodeParseError, "cannot parse server data during %s", op)
	}
	if strings.Contains(text, "unknown command") || strings.Contains(text, "not supported") ||
		strings.Contains(text, "unsupported") {
		return wrapError(err, CodeUnsupportedOperation, "operation not supported by server during %s", op)
	}
	if strings.Contains(text, "mailbox is closed") || strings.Contains(text, "no mailbox selected") {
		return wrapError(err, CodeFolderClosed, "mailbox closed during %s", op)
	}

	return wrapError(err, CodeMessagingError, "messaging failure during %s", op)
}
