package convert

import (
	"fmt"

	"github.com/google/uuid"
)

// Defaults used when a Converter is built without options.
const (
	DefaultVersion        = "2.0"
	DefaultProductID      = "-//calconv"
	DefaultUnknownSubject = "Onbekend Vak"
)

// Builder assembles an output calendar. Implementations own the wire format.
type Builder interface {
	// SetHeader seeds the calendar VERSION and PRODID.
	SetHeader(version, productID string)
	// AddProperty appends a calendar-level property.
	AddProperty(name, value string, params map[string][]string)
	// AddEvent starts a new event with its identifier and timestamp.
	AddEvent(uid, dtstamp string) EventBuilder
	// Serialize renders the accumulated calendar.
	Serialize() string
}

// EventBuilder appends properties to one output event.
type EventBuilder interface {
	AddProperty(name, value string, params map[string][]string)
}

// Converter rewrites calendars using a subject dictionary.
type Converter struct {
	dict           Dictionary
	version        string
	productID      string
	unknownSubject string
}

// Option configures a Converter.
type Option func(*Converter)

// WithHeader overrides the VERSION and PRODID written to output calendars.
// Empty values keep the defaults.
func WithHeader(version, productID string) Option {
	return func(c *Converter) {
		if version != "" {
			c.version = version
		}
		if productID != "" {
			c.productID = productID
		}
	}
}

// WithUnknownSubject sets the summary used when no subject can be derived.
func WithUnknownSubject(s string) Option {
	return func(c *Converter) {
		if s != "" {
			c.unknownSubject = s
		}
	}
}

// New returns a Converter that resolves subjects through dict.
func New(dict Dictionary, opts ...Option) *Converter {
	c := &Converter{
		dict:           dict,
		version:        DefaultVersion,
		productID:      DefaultProductID,
		unknownSubject: DefaultUnknownSubject,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dictionary returns the subject dictionary in use.
func (c *Converter) Dictionary() Dictionary {
	return c.dict
}

// Convert rewrites cal into b and returns the serialized result. The first
// failing event aborts the whole calendar; nothing is returned in that case.
func (c *Converter) Convert(cal Calendar, b Builder) (string, error) {
	props, err := ExtractProperties(cal.Properties)
	if err != nil {
		return "", fmt.Errorf("calendar: %w", err)
	}

	b.SetHeader(c.version, c.productID)

	params := paramsByName(cal.Properties)
	for _, name := range emitOrder(cal.Properties, props) {
		if name == PropVersion || name == PropProductID {
			continue
		}
		b.AddProperty(name, props[name], params[name])
	}

	for i, ev := range cal.Events {
		if err := c.convertEvent(ev, b); err != nil {
			return "", fmt.Errorf("event %d: %w", i, err)
		}
	}

	return b.Serialize(), nil
}

func (c *Converter) convertEvent(ev Event, b Builder) error {
	props, err := ExtractProperties(ev.Properties)
	if err != nil {
		return err
	}

	dtstamp, ok := props[PropDTStamp]
	if !ok {
		return &MissingRequiredPropertyError{Name: PropDTStamp}
	}
	uid, ok := props[PropUID]
	if !ok {
		return &MissingRequiredPropertyError{Name: PropUID}
	}

	rewritten := TransformSummary(props, c.dict, c.unknownSubject)
	NormalizeLocation(props)

	out := b.AddEvent(EventID(uid), dtstamp)
	params := paramsByName(ev.Properties)
	if rewritten {
		// Parameters of the source text do not apply to generated values.
		delete(params, PropSummary)
		delete(params, PropDescription)
	}
	for _, name := range emitOrder(ev.Properties, props) {
		if name == PropUID || name == PropDTStamp {
			continue
		}
		out.AddProperty(name, props[name], params[name])
	}
	return nil
}

// EventID derives the output identifier from the original UID as a
// version 5 UUID in the OID namespace.
func EventID(uid string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(uid)).String()
}
