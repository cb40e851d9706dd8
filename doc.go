// Package imapstore implements the IMAP mailbox access core of a
// groupware mail backend: a stateful client layer that turns one
// authenticated IMAP connection into folder and message operations.
//
// It provides:
//
//   - A connection manager owning one session, with lazily created
//     folder and message storage singletons
//   - Folder CRUD with ACL handling, subscription preservation, and
//     automatic provisioning of the default folders (Drafts, Sent,
//     Spam, Trash, Confirmed-Spam, Confirmed-Ham)
//   - Message fetch, listing with search/sort/pagination, unread
//     discovery, soft-delete-to-trash, and copy/move with spam/ham
//     reclassification side effects
//   - Raw commands the standard primitives do not cover: server-side
//     SORT, fast EXPUNGE, UID EXPUNGE, and READ-ONLY detection
//   - A closed error taxonomy: every transport failure surfaces as a
//     *MailError with a stable code and category
//
// The package is synchronous and connection-scoped: operations against
// one session must be serialized by the caller. See the README for
// end-to-end examples.
package imapstore
