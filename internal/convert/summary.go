package convert

import (
	"strings"
)

// TransformSummary rewrites SUMMARY in m from the encoded form
// "<subject> - <groups> - <teachers>" into a subject name and sets
// DESCRIPTION from the group and teacher lists.
//
// Summaries that do not split into exactly three hyphen-separated parts are
// kept (trimmed, backslashes removed) and DESCRIPTION is left alone.
// It reports whether SUMMARY and DESCRIPTION were replaced by generated text.
func TransformSummary(m PropertyMap, dict Dictionary, unknownSubject string) bool {
	raw, ok := m[PropSummary]
	if !ok {
		return false
	}

	summary := strings.ReplaceAll(strings.TrimSpace(raw), `\`, "")
	m[PropSummary] = summary
	if !strings.Contains(summary, "-") {
		return false
	}

	parts := strings.Split(summary, "-")
	if len(parts) != 3 {
		return false
	}

	groupsStr := strings.TrimSpace(parts[1])
	teachersStr := strings.TrimSpace(parts[2])
	groups := strings.Split(groupsStr, ",")
	teachers := strings.Split(teachersStr, ",")

	var desc strings.Builder
	if len(teachers) == 1 {
		desc.WriteString("Docent: ")
	} else {
		desc.WriteString("Docenten: ")
	}
	desc.WriteString(teachersStr)
	desc.WriteString("; ")
	if len(groups) == 1 {
		desc.WriteString("Clustergroep: ")
	} else {
		desc.WriteString("Clustergroepen: ")
	}
	desc.WriteString(groupsStr)

	subject, ok := dict.Resolve(groups)
	if !ok {
		subject = unknownSubject
	}

	m[PropSummary] = subject
	m[PropDescription] = desc.String()
	return true
}
