// Package convert reinterprets the institution-specific fields of a parsed
// calendar and rebuilds a clean calendar through a Builder.
//
// The package does no I/O and keeps no mutable state; a Converter may be
// shared by any number of goroutines.
package convert

import (
	"slices"
	"sort"
)

// Standard property names the converter reads or writes.
const (
	PropUID         = "UID"
	PropDTStamp     = "DTSTAMP"
	PropSummary     = "SUMMARY"
	PropDescription = "DESCRIPTION"
	PropLocation    = "LOCATION"
	PropVersion     = "VERSION"
	PropProductID   = "PRODID"
)

// Property is a single content line as produced by the parser. A nil Value
// means the line carried no value.
type Property struct {
	Name   string
	Value  *string
	Params map[string][]string
}

// Calendar is the parser's view of one VCALENDAR block.
type Calendar struct {
	Properties []Property
	Events     []Event
}

// Event is the parser's view of one VEVENT block.
type Event struct {
	Properties []Property
}

// PropertyMap maps a property name to its value. It never holds an entry
// for a property without a value.
type PropertyMap map[string]string

// ExtractProperties builds a PropertyMap from props. A later property with
// the same name overwrites an earlier one.
func ExtractProperties(props []Property) (PropertyMap, error) {
	m := make(PropertyMap, len(props))
	for _, p := range props {
		if p.Value == nil {
			return nil, &MissingPropertyValueError{Name: p.Name}
		}
		m[p.Name] = *p.Value
	}
	return m, nil
}

// paramsByName returns the parameters of the last property of each name,
// matching the last-wins rule of ExtractProperties.
func paramsByName(props []Property) map[string]map[string][]string {
	out := make(map[string]map[string][]string)
	for _, p := range props {
		if len(p.Params) == 0 {
			delete(out, p.Name)
			continue
		}
		out[p.Name] = p.Params
	}
	return out
}

// emitOrder lists the names of m in the order they first appear in props,
// followed by names only present in m (added by a transformer) in sorted order.
func emitOrder(props []Property, m PropertyMap) []string {
	seen := make(map[string]bool, len(m))
	names := make([]string, 0, len(m))
	for _, p := range props {
		if _, ok := m[p.Name]; !ok || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		names = append(names, p.Name)
	}

	var added []string
	for name := range m {
		if !seen[name] {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	return slices.Concat(names, added)
}

// StringValue is a helper for building properties that carry a value.
func StringValue(s string) *string {
	return &s
}
