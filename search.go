package imapstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SearchTerm is a composable mail search. The zero value matches all
// messages; leaf conditions and the And/Or/Not combinators nest
// arbitrarily.
type SearchTerm struct {
	// Header matches one header field against a pattern. Well-known
	// fields (From, To, Cc, Bcc, Subject) use their dedicated search
	// keys, everything else goes through a generic HEADER search.
	Header  string
	Pattern string

	// Text matches the pattern anywhere in the message.
	Text string

	Seen     *bool
	Answered *bool
	Flagged  *bool
	Deleted  *bool

	SentSince  time.Time
	SentBefore time.Time

	And []SearchTerm
	Or  []SearchTerm
	Not *SearchTerm
}

// searchDateFormat is the IMAP date syntax for SINCE/BEFORE keys.
const searchDateFormat = "2-Jan-2006"

// searchArg renders one search argument, falling back to literal
// syntax for anything outside printable ASCII so non-ASCII patterns
// survive the wire.
func searchArg(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return MakeIMAPLiteral(s)
		}
	}
	return `"` + AddSlashes.Replace(s) + `"`
}

func flagKey(set *bool, name string) string {
	if set == nil {
		return ""
	}
	if *set {
		return name
	}
	return "UN" + name
}

// render converts the term into the SEARCH key sequence. An empty term
// renders as ALL.
func (t SearchTerm) render() (string, error) {
	var parts []string

	if t.Header != "" {
		if t.Pattern == "" {
			return "", newError(CodeMessagingError, "header search for %q needs a pattern", t.Header)
		}
		switch strings.ToUpper(t.Header) {
		case "FROM", "TO", "CC", "BCC", "SUBJECT":
			parts = append(parts, strings.ToUpper(t.Header)+" "+searchArg(t.Pattern))
		default:
			parts = append(parts, "HEADER "+searchArg(t.Header)+" "+searchArg(t.Pattern))
		}
	}
	if t.Text != "" {
		parts = append(parts, "TEXT "+searchArg(t.Text))
	}
	for _, key := range []string{
		flagKey(t.Seen, "SEEN"),
		flagKey(t.Answered, "ANSWERED"),
		flagKey(t.Flagged, "FLAGGED"),
		flagKey(t.Deleted, "DELETED"),
	} {
		if key != "" {
			parts = append(parts, key)
		}
	}
	if !t.SentSince.IsZero() {
		parts = append(parts, "SENTSINCE "+t.SentSince.Format(searchDateFormat))
	}
	if !t.SentBefore.IsZero() {
		parts = append(parts, "SENTBEFORE "+t.SentBefore.Format(searchDateFormat))
	}

	for _, sub := range t.And {
		q, err := sub.render()
		if err != nil {
			return "", err
		}
		parts = append(parts, q)
	}

	if len(t.Or) > 0 {
		if len(t.Or) == 1 {
			q, err := t.Or[0].render()
			if err != nil {
				return "", err
			}
			parts = append(parts, q)
		} else {
			// OR is a binary key; a longer list folds right to left.
			q, err := t.Or[len(t.Or)-1].render()
			if err != nil {
				return "", err
			}
			for i := len(t.Or) - 2; i >= 0; i-- {
				p, err := t.Or[i].render()
				if err != nil {
					return "", err
				}
				q = fmt.Sprintf("OR (%s) (%s)", p, q)
			}
			parts = append(parts, q)
		}
	}

	if t.Not != nil {
		q, err := t.Not.render()
		if err != nil {
			return "", err
		}
		parts = append(parts, "NOT ("+q+")")
	}

	if len(parts) == 0 {
		return "ALL", nil
	}
	return strings.Join(parts, " "), nil
}

// addressKey is the string a set of addresses sorts under: the first
// display name, or the bare address when there is none.
func addressKey(addrs EmailAddresses) string {
	best := ""
	for addr, name := range addrs {
		key := name
		if key == "" {
			key = addr
		}
		if best == "" || key < best {
			best = key
		}
	}
	return best
}

// sortMessagesLocal sorts messages in place by the given field using a
// locale-aware collator for textual fields. The sort is stable; UID
// ascending is the tiebreak-free fallback field.
func sortMessagesLocal(msgs []*Message, sortBy Field, descending bool, locale string) {
	tag := language.English
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			tag = parsed
		} else {
			debugLog(-1, "", "unknown locale, sorting with English collation", "locale", locale)
		}
	}
	col := collate.New(tag, collate.IgnoreCase)

	less := func(a, b *Message) bool {
		switch sortBy {
		case FieldReceivedDate:
			return a.Received.Before(b.Received)
		case FieldSentDate:
			return a.Sent.Before(b.Sent)
		case FieldSize:
			return a.Size < b.Size
		case FieldSubject:
			return col.CompareString(a.Subject, b.Subject) < 0
		case FieldFrom:
			return col.CompareString(addressKey(a.From), addressKey(b.From)) < 0
		case FieldTo:
			return col.CompareString(addressKey(a.To), addressKey(b.To)) < 0
		case FieldCC:
			return col.CompareString(addressKey(a.CC), addressKey(b.CC)) < 0
		case FieldSeen:
			return !a.Seen() && b.Seen()
		case FieldFlags:
			return col.CompareString(strings.Join(a.Flags, " "), strings.Join(b.Flags, " ")) < 0
		default:
			return a.UID < b.UID
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if descending {
			return less(msgs[j], msgs[i])
		}
		return less(msgs[i], msgs[j])
	})
}
