package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// calendar builds a CRLF-terminated ICS payload around the given lines.
func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//calsync//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func TestParseSingleEvent(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:e1",
		"SUMMARY:Meetup",
		"DESCRIPTION:Monthly get-together",
		"LOCATION:Town Hall",
		"URL:https://acme.example/meetup",
		"DTSTART:20260302T180000Z",
		"DTEND:20260302T190000Z",
		"END:VEVENT",
	)

	events, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "e1", ev.UID)
	assert.Equal(t, "Meetup", ev.Summary)
	assert.Equal(t, "Monthly get-together", ev.Description)
	assert.Equal(t, "Town Hall", ev.Location)
	assert.Equal(t, "https://acme.example/meetup", ev.URL)
	assert.True(t, ev.Start.Equal(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)))
	assert.True(t, ev.End.Equal(time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)))
}

func TestParseMalformedComponentIsIsolated(t *testing.T) {
	// The middle component has no DTSTART; it must be dropped without
	// taking its neighbors down.
	body := calendar(
		"BEGIN:VEVENT",
		"UID:good-1",
		"SUMMARY:First",
		"DTSTART:20260302T180000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:broken",
		"SUMMARY:No start",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:good-2",
		"SUMMARY:Second",
		"DTSTART:20260303T180000Z",
		"END:VEVENT",
	)

	events, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "good-1", events[0].UID)
	assert.Equal(t, "good-2", events[1].UID)
}

func TestParseMissingUIDDropsComponent(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"SUMMARY:Anonymous",
		"DTSTART:20260302T180000Z",
		"END:VEVENT",
	)

	events, err := Parse(body)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseMissingEndDefaultsToOneHour(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:e1",
		"SUMMARY:Open ended",
		"DTSTART:20260302T180000Z",
		"END:VEVENT",
	)

	events, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.Hour, events[0].End.Sub(events[0].Start))
}

func TestParseFloatingTimesAssumeUTC(t *testing.T) {
	// A DTSTART with no Z suffix and no TZID must read as UTC no matter
	// how the host zone is configured; otherwise the same feed derives
	// different keys on different machines.
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	orig := time.Local
	time.Local = chicago
	t.Cleanup(func() { time.Local = orig })

	body := calendar(
		"BEGIN:VEVENT",
		"UID:e1",
		"SUMMARY:Floating",
		"DTSTART:20260302T180000",
		"DTEND:20260302T190000",
		"END:VEVENT",
	)

	events, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.True(t, events[0].Start.Equal(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, events[0].Start.Location())
	assert.True(t, events[0].End.Equal(time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)))
}

func TestParseZuluAndTZIDTimesAreNotRewritten(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:e1",
		"SUMMARY:Zoned",
		"DTSTART;TZID=America/New_York:20260302T130000",
		"DTEND;TZID=America/New_York:20260302T140000",
		"END:VEVENT",
	)

	events, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, "America/New_York", events[0].StartTZ)
	assert.True(t, events[0].Start.Equal(time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)))
}

func TestParseGarbageIsParseError(t *testing.T) {
	_, err := Parse([]byte("this is not a calendar"))

	var perr *ParseError
	require.ErrorAs(t, err, &perr)

	_, err = Parse(nil)
	require.ErrorAs(t, err, &perr)
}

func TestParseRecurrenceProperties(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:series",
		"SUMMARY:Weekly",
		"DTSTART:20260106T180000Z",
		"DTEND:20260106T190000Z",
		"RRULE:FREQ=WEEKLY",
		"EXDATE:20260113T180000Z",
		"END:VEVENT",
	)

	events, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, "FREQ=WEEKLY", events[0].RawRRule)
	require.Len(t, events[0].ExDates, 1)
	assert.True(t, events[0].ExDates[0].Equal(time.Date(2026, 1, 13, 18, 0, 0, 0, time.UTC)))
}
