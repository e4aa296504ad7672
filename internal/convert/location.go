package convert

import (
	"strings"
	"unicode/utf8"
)

// NormalizeLocation rewrites LOCATION in m: each comma-separated room code is
// trimmed, a five character code loses its leading building character, and
// the result is uppercased. Rooms are rejoined with ", ".
func NormalizeLocation(m PropertyMap) {
	raw, ok := m[PropLocation]
	if !ok {
		return
	}

	// Escaped commas ("\,") are room separators too.
	rooms := strings.Split(strings.ReplaceAll(strings.TrimSpace(raw), `\`, ""), ",")
	for i, room := range rooms {
		rooms[i] = normalizeRoom(room)
	}
	m[PropLocation] = strings.Join(rooms, ", ")
}

func normalizeRoom(room string) string {
	room = strings.TrimSpace(room)
	if utf8.RuneCountInString(room) == 5 {
		_, size := utf8.DecodeRuneInString(room)
		room = room[size:]
	}
	return strings.ToUpper(room)
}
