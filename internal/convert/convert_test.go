package convert

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prop(name, value string) Property {
	return Property{Name: name, Value: StringValue(value)}
}

func TestExtractProperties(t *testing.T) {
	t.Run("last duplicate wins", func(t *testing.T) {
		m, err := ExtractProperties([]Property{
			prop("SUMMARY", "first"),
			prop("LOCATION", "A101"),
			prop("SUMMARY", "second"),
		})
		require.NoError(t, err)
		if diff := cmp.Diff(PropertyMap{"SUMMARY": "second", "LOCATION": "A101"}, m); diff != "" {
			t.Errorf("unexpected map (-want +got):\n%s", diff)
		}
	})

	t.Run("order of distinct names is irrelevant", func(t *testing.T) {
		a, err := ExtractProperties([]Property{prop("A", "1"), prop("B", "2")})
		require.NoError(t, err)
		b, err := ExtractProperties([]Property{prop("B", "2"), prop("A", "1")})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("value-less property fails", func(t *testing.T) {
		_, err := ExtractProperties([]Property{prop("UID", "x"), {Name: "SUMMARY"}, {Name: "LOCATION"}})
		var missing *MissingPropertyValueError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "SUMMARY", missing.Name)
	})

	t.Run("empty input", func(t *testing.T) {
		m, err := ExtractProperties(nil)
		require.NoError(t, err)
		assert.Empty(t, m)
	})
}

func testDictionary() Dictionary {
	return NewDictionary([]Subject{
		{Key: "WISD", Name: "Wiskunde D"},
		{Key: "WIS", Name: "Wiskunde"},
		{Key: "NAT", Name: "Natuurkunde"},
		{Key: "", Name: "matches everything"},
	})
}

func TestDictionaryResolve(t *testing.T) {
	d := testDictionary()
	assert.Equal(t, 3, d.Len())

	cases := []struct {
		name   string
		groups []string
		want   string
		ok     bool
	}{
		{"digits stripped before lookup", []string{"WIS3A2"}, "Wiskunde", true},
		{"first match in order wins", []string{"WISD5"}, "Wiskunde D", true},
		{"only first group is inspected", []string{"ECO4", "NAT4"}, "ECO", true},
		{"fallback to group name", []string{" ENG42 "}, "ENG", true},
		{"no groups", nil, "", false},
		{"only digits", []string{"1234"}, "", false},
		{"blank group", []string{"  "}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := d.Resolve(tc.groups)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDictionaryIsImmutable(t *testing.T) {
	entries := []Subject{{Key: "WIS", Name: "Wiskunde"}}
	d := NewDictionary(entries)
	entries[0].Name = "changed"

	got := d.Entries()
	got[0].Name = "changed too"

	subject, _ := d.Resolve([]string{"WIS1"})
	assert.Equal(t, "Wiskunde", subject)
}

func TestTransformSummary(t *testing.T) {
	d := NewDictionary([]Subject{{Key: "WIS3A", Name: "Wiskunde"}})

	t.Run("encoded summary", func(t *testing.T) {
		m := PropertyMap{PropSummary: "WISK - WIS3A2, WIS3B1 - jdoe"}
		assert.True(t, TransformSummary(m, d, DefaultUnknownSubject))
		assert.Equal(t, "Wiskunde", m[PropSummary])
		assert.Equal(t, "Docent: jdoe; Clustergroepen: WIS3A2, WIS3B1", m[PropDescription])
	})

	t.Run("unmatched group falls back to stripped name", func(t *testing.T) {
		m := PropertyMap{PropSummary: "WISK - WIS3A2, WIS3B1 - jdoe"}
		TransformSummary(m, NewDictionary(nil), DefaultUnknownSubject)
		assert.Equal(t, "WIS3A", m[PropSummary])
	})

	t.Run("several teachers single group", func(t *testing.T) {
		m := PropertyMap{PropSummary: `  NAT - NAT5 - abc\, xyz `}
		TransformSummary(m, d, DefaultUnknownSubject)
		assert.Equal(t, "NAT", m[PropSummary])
		assert.Equal(t, "Docenten: abc, xyz; Clustergroep: NAT5", m[PropDescription])
	})

	t.Run("unknown subject literal", func(t *testing.T) {
		m := PropertyMap{PropSummary: "X - 123 - jdoe"}
		TransformSummary(m, d, "Unknown subject")
		assert.Equal(t, "Unknown subject", m[PropSummary])
		assert.Equal(t, "Docent: jdoe; Clustergroep: 123", m[PropDescription])
	})

	t.Run("no hyphen passes through", func(t *testing.T) {
		m := PropertyMap{PropSummary: "Study Hall"}
		assert.False(t, TransformSummary(m, d, DefaultUnknownSubject))
		assert.Equal(t, "Study Hall", m[PropSummary])
		assert.NotContains(t, m, PropDescription)
	})

	for _, in := range []string{"Mentor - uur", `a - b - c - d`, "x-y-z-w-v"} {
		t.Run(fmt.Sprintf("wrong segment count %q", in), func(t *testing.T) {
			m := PropertyMap{PropSummary: " " + in + `\`}
			assert.False(t, TransformSummary(m, d, DefaultUnknownSubject))
			assert.Equal(t, in, m[PropSummary])
			assert.NotContains(t, m, PropDescription)
		})
	}

	t.Run("existing description is overwritten", func(t *testing.T) {
		m := PropertyMap{PropSummary: "A - WIS3A1 - t", PropDescription: "old"}
		TransformSummary(m, d, DefaultUnknownSubject)
		assert.Equal(t, "Docent: t; Clustergroep: WIS3A1", m[PropDescription])
	})

	t.Run("absent summary", func(t *testing.T) {
		m := PropertyMap{}
		TransformSummary(m, d, DefaultUnknownSubject)
		assert.Empty(t, m)
	})
}

func TestNormalizeLocation(t *testing.T) {
	cases := map[string]string{
		"A101, B2":          "A101, B2",
		"A1234":             "1234",
		"1b204":             "B204",
		"1b204,2c105 , gym": "B204, C105, GYM",
		`1b204\,2c105`:      "B204, C105",
		"  aula  ":          "AULA",
		"":                  "",
	}
	for in, want := range cases {
		m := PropertyMap{PropLocation: in}
		NormalizeLocation(m)
		assert.Equal(t, want, m[PropLocation], "input %q", in)
	}

	m := PropertyMap{}
	NormalizeLocation(m)
	assert.NotContains(t, m, PropLocation)
}

func TestEventID(t *testing.T) {
	a := EventID("event-1@somtoday")
	assert.Equal(t, a, EventID("event-1@somtoday"))
	assert.NotEqual(t, a, EventID("event-2@somtoday"))

	id, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), id.Version())
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceOID, []byte("event-1@somtoday")), id)
}

type recordedProperty struct {
	Name   string
	Value  string
	Params map[string][]string
}

type recordedEvent struct {
	UID        string
	DTStamp    string
	Properties []recordedProperty
}

func (e *recordedEvent) AddProperty(name, value string, params map[string][]string) {
	e.Properties = append(e.Properties, recordedProperty{Name: name, Value: value, Params: params})
}

type recordingBuilder struct {
	Version    string
	ProductID  string
	Properties []recordedProperty
	Events     []*recordedEvent
}

func (b *recordingBuilder) SetHeader(version, productID string) {
	b.Version, b.ProductID = version, productID
}

func (b *recordingBuilder) AddProperty(name, value string, params map[string][]string) {
	b.Properties = append(b.Properties, recordedProperty{Name: name, Value: value, Params: params})
}

func (b *recordingBuilder) AddEvent(uid, dtstamp string) EventBuilder {
	ev := &recordedEvent{UID: uid, DTStamp: dtstamp}
	b.Events = append(b.Events, ev)
	return ev
}

func (b *recordingBuilder) Serialize() string {
	var s strings.Builder
	for _, ev := range b.Events {
		s.WriteString(ev.UID)
		s.WriteByte('\n')
	}
	return s.String()
}

func testEvent(uid string, extra ...Property) Event {
	props := []Property{
		prop("UID", uid),
		prop("DTSTAMP", "20240901T060000Z"),
	}
	return Event{Properties: append(props, extra...)}
}

func TestConverterConvert(t *testing.T) {
	tzid := map[string][]string{"TZID": {"Europe/Amsterdam"}}
	cal := Calendar{
		Properties: []Property{
			prop("VERSION", "2.0"),
			prop("PRODID", "-//Somtoday//NL"),
			prop("X-WR-CALNAME", "Rooster"),
			prop("CALSCALE", "GREGORIAN"),
		},
		Events: []Event{
			testEvent("les-1",
				Property{Name: "DTSTART", Value: StringValue("20240902T083000"), Params: tzid},
				prop("SUMMARY", "WISK - WIS3A2, WIS3B1 - jdoe"),
				prop("LOCATION", "1b204"),
			),
			testEvent("les-2", prop("SUMMARY", "Study Hall")),
		},
	}

	b := &recordingBuilder{}
	out, err := New(testDictionary(), WithHeader("", "-//test")).Convert(cal, b)
	require.NoError(t, err)

	assert.Equal(t, DefaultVersion, b.Version)
	assert.Equal(t, "-//test", b.ProductID)
	assert.Equal(t, []recordedProperty{
		{Name: "X-WR-CALNAME", Value: "Rooster"},
		{Name: "CALSCALE", Value: "GREGORIAN"},
	}, b.Properties)

	want := []*recordedEvent{
		{
			UID:     EventID("les-1"),
			DTStamp: "20240901T060000Z",
			Properties: []recordedProperty{
				{Name: "DTSTART", Value: "20240902T083000", Params: tzid},
				{Name: "SUMMARY", Value: "Wiskunde"},
				{Name: "LOCATION", Value: "B204"},
				{Name: "DESCRIPTION", Value: "Docent: jdoe; Clustergroepen: WIS3A2, WIS3B1"},
			},
		},
		{
			UID:        EventID("les-2"),
			DTStamp:    "20240901T060000Z",
			Properties: []recordedProperty{{Name: "SUMMARY", Value: "Study Hall"}},
		},
	}
	if diff := cmp.Diff(want, b.Events); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}
	assert.Equal(t, EventID("les-1")+"\n"+EventID("les-2")+"\n", out)
}

func TestConverterPreservesEventOrder(t *testing.T) {
	var cal Calendar
	for i := 0; i < 25; i++ {
		cal.Events = append(cal.Events, testEvent(fmt.Sprintf("uid-%02d", i)))
	}

	b := &recordingBuilder{}
	_, err := New(NewDictionary(nil)).Convert(cal, b)
	require.NoError(t, err)

	require.Len(t, b.Events, 25)
	for i, ev := range b.Events {
		assert.Equal(t, EventID(fmt.Sprintf("uid-%02d", i)), ev.UID)
	}
}

func TestConverterFailsWholeCalendar(t *testing.T) {
	good := testEvent("ok")

	cases := []struct {
		name  string
		cal   Calendar
		check func(t *testing.T, err error)
	}{
		{
			name: "missing DTSTAMP",
			cal: Calendar{Events: []Event{good, {Properties: []Property{prop("UID", "x")}}, good}},
			check: func(t *testing.T, err error) {
				var missing *MissingRequiredPropertyError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, "DTSTAMP", missing.Name)
			},
		},
		{
			name: "missing UID",
			cal:  Calendar{Events: []Event{{Properties: []Property{prop("DTSTAMP", "20240101T000000Z")}}}},
			check: func(t *testing.T, err error) {
				var missing *MissingRequiredPropertyError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, "UID", missing.Name)
			},
		},
		{
			name: "value-less event property",
			cal:  Calendar{Events: []Event{testEvent("x", Property{Name: "LOCATION"})}},
			check: func(t *testing.T, err error) {
				var missing *MissingPropertyValueError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, "LOCATION", missing.Name)
			},
		},
		{
			name: "value-less calendar property",
			cal:  Calendar{Properties: []Property{{Name: "X-WR-CALNAME"}}, Events: []Event{good}},
			check: func(t *testing.T, err error) {
				var missing *MissingPropertyValueError
				require.ErrorAs(t, err, &missing)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := New(NewDictionary(nil)).Convert(tc.cal, &recordingBuilder{})
			require.Error(t, err)
			assert.Empty(t, out)
			tc.check(t, err)
		})
	}
}

func TestParamsFollowLastWins(t *testing.T) {
	props := []Property{
		{Name: "DTSTART", Value: StringValue("1"), Params: map[string][]string{"TZID": {"A"}}},
		{Name: "DTSTART", Value: StringValue("2")},
		{Name: "DTEND", Value: StringValue("3"), Params: map[string][]string{"TZID": {"B"}}},
	}
	params := paramsByName(props)
	assert.NotContains(t, params, "DTSTART")
	assert.Equal(t, []string{"B"}, params["DTEND"]["TZID"])
}

func TestConverterDropsParamsOfGeneratedText(t *testing.T) {
	lang := map[string][]string{"LANGUAGE": {"nl"}}
	altrep := map[string][]string{"ALTREP": {"https://example.com/les"}}
	cal := Calendar{Events: []Event{
		testEvent("rewritten",
			Property{Name: "SUMMARY", Value: StringValue("WISK - WIS3A2 - jdoe"), Params: lang},
			Property{Name: "DESCRIPTION", Value: StringValue("old"), Params: altrep},
		),
		testEvent("kept",
			Property{Name: "SUMMARY", Value: StringValue("Study Hall"), Params: lang},
			Property{Name: "DESCRIPTION", Value: StringValue("old"), Params: altrep},
		),
	}}

	b := &recordingBuilder{}
	_, err := New(testDictionary()).Convert(cal, b)
	require.NoError(t, err)

	require.Len(t, b.Events, 2)
	assert.Equal(t, []recordedProperty{
		{Name: "SUMMARY", Value: "Wiskunde"},
		{Name: "DESCRIPTION", Value: "Docent: jdoe; Clustergroep: WIS3A2"},
	}, b.Events[0].Properties)
	assert.Equal(t, []recordedProperty{
		{Name: "SUMMARY", Value: "Study Hall", Params: lang},
		{Name: "DESCRIPTION", Value: "old", Params: altrep},
	}, b.Events[1].Properties)
}
