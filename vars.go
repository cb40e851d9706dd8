package imapstore

import (
	"strings"
	"time"
)

// String replacers for escaping/unescaping quotes in IMAP arguments
var (
	AddSlashes    = strings.NewReplacer(`"`, `\"`)
	RemoveSlashes = strings.NewReplacer(`\"`, `"`)
)

// Verbose outputs every command and its response with the IMAP server
var Verbose = false

// SkipResponses skips logging server responses in verbose mode
var SkipResponses = false

// RetryCount is the number of times retried commands get retried
var RetryCount = 10

// DialTimeout defines how long to wait when establishing a new connection.
// Zero means no timeout.
var DialTimeout time.Duration

// CommandTimeout defines how long to wait for a command to complete.
// Zero means no timeout.
var CommandTimeout time.Duration
