package convert

import "strings"

// Subject maps a group-name substring to a readable subject name.
type Subject struct {
	Key  string
	Name string
}

// Dictionary is an ordered, immutable list of subjects. Lookups scan it in
// order and the first matching key wins.
type Dictionary struct {
	entries []Subject
}

// NewDictionary copies entries into a Dictionary. Entries with an empty key
// are dropped since they would match every group.
func NewDictionary(entries []Subject) Dictionary {
	d := Dictionary{entries: make([]Subject, 0, len(entries))}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		d.entries = append(d.entries, e)
	}
	return d
}

// Len returns the number of entries.
func (d Dictionary) Len() int {
	return len(d.entries)
}

// Entries returns a copy of the entries in lookup order.
func (d Dictionary) Entries() []Subject {
	return append([]Subject(nil), d.entries...)
}

// Resolve derives a subject name from the first group code only; the
// remaining codes are ignored. Trailing digits are stripped from the code
// ("WIS3A2" -> "WIS3A") and the result is matched against the dictionary.
// Without a match the stripped group name itself is returned.
//
// ok is false when there is no group code, or when nothing is left of the
// first one after trimming and stripping; the caller supplies a fallback.
func (d Dictionary) Resolve(groups []string) (subject string, ok bool) {
	if len(groups) == 0 {
		return "", false
	}

	name := groupName(groups[0])
	if name == "" {
		return "", false
	}
	for _, e := range d.entries {
		if strings.Contains(name, e.Key) {
			return e.Name, true
		}
	}
	return name, true
}

func groupName(code string) string {
	return strings.TrimRight(strings.TrimSpace(code), "0123456789")
}
