package imapstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// VirtualRoot is the sentinel standing in for the namespace root at
// the external boundary. Fullnames arriving from callers carry it as a
// prefix ("default" + separator + real fullname); internal operations
// work on real fullnames only.
const VirtualRoot = "default"

// stripVirtualRoot translates an external fullname to the real one.
// The bare sentinel maps to the empty root fullname; a name without
// the prefix passes through unchanged.
func stripVirtualRoot(fullname string, sep rune) string {
	if fullname == VirtualRoot {
		return ""
	}
	if strings.HasPrefix(fullname, VirtualRoot+string(sep)) {
		return fullname[len(VirtualRoot)+1:]
	}
	return fullname
}

// addVirtualRoot is the inverse of stripVirtualRoot.
func addVirtualRoot(fullname string, sep rune) string {
	if fullname == "" || fullname == VirtualRoot {
		return VirtualRoot
	}
	if strings.HasPrefix(fullname, VirtualRoot+string(sep)) {
		return fullname
	}
	return VirtualRoot + string(sep) + fullname
}

// UIDRange is a closed range of message UIDs.
type UIDRange struct {
	Start int
	End   int
}

func (r UIDRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return strconv.Itoa(r.Start) + ":" + strconv.Itoa(r.End)
}

// compressUIDs compresses a list of unique ids into the minimal list of
// closed ranges covering maximal runs of consecutive integers. The
// input is not mutated; ranges come out in ascending order, so the
// same input always yields the same ranges.
func compressUIDs(uids []int) []UIDRange {
	if len(uids) == 0 {
		return nil
	}
	sorted := make([]int, len(uids))
	copy(sorted, uids)
	sort.Ints(sorted)

	ranges := make([]UIDRange, 0, len(sorted))
	cur := UIDRange{Start: sorted[0], End: sorted[0]}
	for _, uid := range sorted[1:] {
		switch {
		case uid == cur.End:
			// duplicate id, nothing to extend
		case uid == cur.End+1:
			cur.End = uid
		default:
			ranges = append(ranges, cur)
			cur = UIDRange{Start: uid, End: uid}
		}
	}
	return append(ranges, cur)
}

// expandUIDRanges is the inverse of compressUIDs.
func expandUIDRanges(ranges []UIDRange) []int {
	var uids []int
	for _, r := range ranges {
		for uid := r.Start; uid <= r.End; uid++ {
			uids = append(uids, uid)
		}
	}
	return uids
}

// formatUIDSet renders ranges as an IMAP sequence-set argument.
func formatUIDSet(ranges []UIDRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// uidSet is shorthand for compressing a UID list straight into a
// sequence-set argument.
func uidSet(uids []int) string {
	return formatUIDSet(compressUIDs(uids))
}

// deriveFetchItems returns the minimal set of FETCH data items needed
// to satisfy the requested logical fields plus the sort field. UID is
// always requested; overlapping fields (e.g. two flag-dependent ones)
// collapse to one item.
func deriveFetchItems(fields []Field, sortBy Field) []string {
	want := map[string]bool{"UID": true}
	add := func(f Field) {
		switch f {
		case FieldFlags, FieldSeen, FieldAnswered, FieldDraft:
			want["FLAGS"] = true
		case FieldReceivedDate:
			want["INTERNALDATE"] = true
		case FieldSize:
			want["RFC822.SIZE"] = true
		case FieldFrom, FieldTo, FieldCC, FieldBCC, FieldSubject,
			FieldSentDate, FieldMessageID:
			want["ENVELOPE"] = true
		case FieldBodyStructure:
			want["BODYSTRUCTURE"] = true
		case FieldHeaders:
			want["BODY.PEEK[HEADER]"] = true
		}
	}
	for _, f := range fields {
		add(f)
	}
	add(sortBy)

	// Fixed output order keeps commands reproducible.
	items := make([]string, 0, len(want))
	for _, item := range []string{"UID", "FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE", "BODYSTRUCTURE", "BODY.PEEK[HEADER]"} {
		if want[item] {
			items = append(items, item)
		}
	}
	return items
}

// recoverHeaders parses a raw header block line by line, folding
// continuation lines, for messages whose structured header parse
// failed. When the same header name occurs more than once the last
// occurrence wins; that mirrors the long-standing behavior of this
// layer, not RFC preference.
func recoverHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	var name, value string
	flush := func() {
		if name != "" {
			headers[name] = strings.TrimSpace(value)
		}
		name, value = "", ""
	}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			// folded continuation of the previous header
			if name != "" {
				value += " " + strings.TrimSpace(line)
			}
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			// garbage line; skip it but keep what we have so far
			continue
		}
		flush()
		name = strings.TrimSpace(line[:colon])
		value = line[colon+1:]
	}
	flush()
	return headers
}

// dropNl removes trailing newline characters from a byte slice
func dropNl(b []byte) []byte {
	if len(b) >= 1 && b[len(b)-1] == '\n' {
		if len(b) >= 2 && b[len(b)-2] == '\r' {
			return b[:len(b)-2]
		} else {
			return b[:len(b)-1]
		}
	}
	return b
}

// MakeIMAPLiteral generates IMAP literal syntax for non-ASCII strings.
// It returns a string in the format "{bytecount}\r\ntext" where bytecount
// is the number of bytes (not characters) in the input string.
// This is useful for search queries with non-ASCII characters.
// Example: MakeIMAPLiteral("тест") returns "{8}\r\nтест"
func MakeIMAPLiteral(s string) string {
	return fmt.Sprintf("{%d}\r\n%s", len([]byte(s)), s)
}
