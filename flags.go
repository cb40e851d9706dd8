package imapstore

import (
	"fmt"
	"reflect"
	"strings"
)

// FlagSet represents the action to take on a flag
type FlagSet int

const (
	FlagUnset FlagSet = iota
	FlagAdd
	FlagRemove
)

// Flags represents standard IMAP message flags
type Flags struct {
	Seen     FlagSet
	Answered FlagSet
	Flagged  FlagSet
	Deleted  FlagSet
	Draft    FlagSet
	Keywords map[string]bool
}

// storeFlagsQuery crafts a UID STORE command applying flags to a whole
// UID set at once. Returns "" when no flag action is requested.
func storeFlagsQuery(uids []int, flags Flags) string {
	addFlags := []string{}
	removeFlags := []string{}

	v := reflect.ValueOf(flags)
	t := reflect.TypeOf(flags)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)

		if field.Type == reflect.TypeOf(FlagUnset) {
			switch FlagSet(value.Int()) {
			case FlagAdd:
				addFlags = append(addFlags, `\`+field.Name)
			case FlagRemove:
				removeFlags = append(removeFlags, `\`+field.Name)
			}
		}
	}

	// iterate over the keyword-map and add those too to the slices
	for keyword, state := range flags.Keywords {
		if state {
			addFlags = append(addFlags, keyword)
		} else {
			removeFlags = append(removeFlags, keyword)
		}
	}

	if len(addFlags) == 0 && len(removeFlags) == 0 {
		return ""
	}

	query := fmt.Sprintf("UID STORE %s", uidSet(uids))
	if len(addFlags) > 0 {
		query += fmt.Sprintf(` +FLAGS (%s)`, strings.Join(addFlags, " "))
	}
	if len(removeFlags) > 0 {
		query += fmt.Sprintf(` -FLAGS (%s)`, strings.Join(removeFlags, " "))
	}
	return query
}

// hasFlag reports whether a fetched flag list contains the given
// system flag, compared case-insensitively without the backslash.
func hasFlag(flags []string, name string) bool {
	for _, f := range flags {
		if strings.EqualFold(strings.TrimPrefix(f, `\`), name) {
			return true
		}
	}
	return false
}
