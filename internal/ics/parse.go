package ics

import (
	"bytes"
	"errors"
	"fmt"

	ical "github.com/arran4/golang-ical"

	"calconv/internal/convert"
	appLog "calconv/internal/log"
)

// ErrNoCalendar is returned when a payload holds no VCALENDAR block.
var ErrNoCalendar = errors.New("no calendar found")

// Document is one parsed calendar in the converter's object model, plus the
// timezone components that are carried into the output unchanged.
type Document struct {
	Calendar  convert.Calendar
	timezones []*ical.VTimezone
}

// Parse reads the first VCALENDAR block of body that golang-ical accepts.
// Blocks that fail to parse are skipped; if every block fails, the first
// parse error is returned.
//
// golang-ical stores a line without a value as an empty string; such
// properties are reported with a nil Value so that extraction rejects them.
func Parse(body []byte) (*Document, error) {
	blocks := splitCalendars(body)
	if len(blocks) == 0 {
		return nil, ErrNoCalendar
	}

	var firstErr error
	for i, block := range blocks {
		cal, err := ical.ParseCalendar(bytes.NewReader(block))
		if err != nil {
			appLog.Warn("ics calendar block skipped", "index", i, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("parse calendar: %w", err)
			}
			continue
		}
		return fromCalendar(cal), nil
	}
	return nil, firstErr
}

// splitCalendars cuts body into BEGIN:VCALENDAR ... END:VCALENDAR blocks,
// ignoring anything between them. An unterminated block ends where the next
// BEGIN:VCALENDAR starts, or at the end of body.
func splitCalendars(body []byte) [][]byte {
	var (
		blocks [][]byte
		start  = -1
		offset int
	)
	for _, line := range bytes.SplitAfter(body, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		switch {
		case bytes.EqualFold(trimmed, []byte("BEGIN:VCALENDAR")):
			if start >= 0 {
				blocks = append(blocks, body[start:offset])
			}
			start = offset
		case start >= 0 && bytes.EqualFold(trimmed, []byte("END:VCALENDAR")):
			blocks = append(blocks, body[start:offset+len(line)])
			start = -1
		}
		offset += len(line)
	}
	if start >= 0 {
		blocks = append(blocks, body[start:])
	}
	return blocks
}

func fromCalendar(cal *ical.Calendar) *Document {
	doc := &Document{}
	for _, p := range cal.CalendarProperties {
		doc.Calendar.Properties = append(doc.Calendar.Properties, fromBase(p.BaseProperty))
	}

	for _, comp := range cal.Components {
		switch c := comp.(type) {
		case *ical.VEvent:
			ev := convert.Event{Properties: make([]convert.Property, 0, len(c.Properties))}
			for _, p := range c.Properties {
				ev.Properties = append(ev.Properties, fromBase(p.BaseProperty))
			}
			doc.Calendar.Events = append(doc.Calendar.Events, ev)
		case *ical.VTimezone:
			doc.timezones = append(doc.timezones, c)
		}
	}

	appLog.Debug("ics parse completed", "event_count", len(doc.Calendar.Events), "timezone_count", len(doc.timezones))
	return doc
}

func fromBase(bp ical.BaseProperty) convert.Property {
	p := convert.Property{Name: bp.IANAToken}
	if bp.Value != "" {
		p.Value = convert.StringValue(bp.Value)
	}
	if len(bp.ICalParameters) > 0 {
		p.Params = make(map[string][]string, len(bp.ICalParameters))
		for k, v := range bp.ICalParameters {
			p.Params[k] = append([]string(nil), v...)
		}
	}
	return p
}
