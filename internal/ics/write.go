package ics

import (
	ical "github.com/arran4/golang-ical"

	"calconv/internal/convert"
)

// Writer builds an output calendar with golang-ical. It implements
// convert.Builder.
type Writer struct {
	cal *ical.Calendar
}

var _ convert.Builder = (*Writer)(nil)

// NewWriter returns an empty Writer. Timezone components of src, if given,
// are copied so that TZID parameters in the output keep resolving.
func NewWriter(src *Document) *Writer {
	w := &Writer{cal: &ical.Calendar{}}
	if src != nil {
		for _, tz := range src.timezones {
			w.cal.Components = append(w.cal.Components, tz)
		}
	}
	return w
}

func (w *Writer) SetHeader(version, productID string) {
	header := []ical.CalendarProperty{
		{BaseProperty: ical.BaseProperty{IANAToken: convert.PropVersion, Value: version}},
		{BaseProperty: ical.BaseProperty{IANAToken: convert.PropProductID, Value: productID}},
	}
	w.cal.CalendarProperties = append(header, w.cal.CalendarProperties...)
}

func (w *Writer) AddProperty(name, value string, params map[string][]string) {
	w.cal.CalendarProperties = append(w.cal.CalendarProperties, ical.CalendarProperty{
		BaseProperty: baseProperty(name, value, params),
	})
}

func (w *Writer) AddEvent(uid, dtstamp string) convert.EventBuilder {
	ev := &ical.VEvent{}
	ev.Properties = append(ev.Properties,
		ical.IANAProperty{BaseProperty: baseProperty(convert.PropUID, uid, nil)},
		ical.IANAProperty{BaseProperty: baseProperty(convert.PropDTStamp, dtstamp, nil)},
	)
	w.cal.Components = append(w.cal.Components, ev)
	return &eventWriter{ev: ev}
}

func (w *Writer) Serialize() string {
	return w.cal.Serialize()
}

type eventWriter struct {
	ev *ical.VEvent
}

func (e *eventWriter) AddProperty(name, value string, params map[string][]string) {
	e.ev.Properties = append(e.ev.Properties, ical.IANAProperty{BaseProperty: baseProperty(name, value, params)})
}

func baseProperty(name, value string, params map[string][]string) ical.BaseProperty {
	bp := ical.BaseProperty{IANAToken: name, Value: value}
	if len(params) > 0 {
		bp.ICalParameters = make(map[string][]string, len(params))
		for k, v := range params {
			bp.ICalParameters[k] = append([]string(nil), v...)
		}
	}
	return bp
}
