package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ParseError reports a calendar payload that could not be parsed at all.
// Individual malformed components are not ParseErrors; they are dropped
// with a warning so the rest of the feed still processes.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parsing calendar: %s", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ParsedEvent is one VEVENT as read from a feed, before recurrence
// expansion.
type ParsedEvent struct {
	UID string

	Summary     string
	Description string
	Location    string
	URL         string

	Start   time.Time
	End     time.Time
	StartTZ string

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, when this VEVENT overrides one instance
	IsOverride bool
}

// Parse reads a calendar payload into ParsedEvents. Components missing a
// UID or a usable DTSTART are dropped, never propagated as partial
// events, and never abort the remaining components.
func Parse(body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, &ParseError{Err: errors.New("empty calendar body")}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	events := make([]ParsedEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			slog.Warn("dropping malformed component", "error", perr)
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		out.URL = strings.TrimSpace(p.Value)
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)

	start, err := ve.GetStartAt()
	if err != nil || start.IsZero() {
		return out, fmt.Errorf("uid %s: missing or unparseable DTSTART", out.UID)
	}
	if isFloating(startProp) {
		// Floating times resolve in the process-local zone; pin them to
		// UTC so keys derived from them do not vary by host.
		start = asUTCWallClock(start)
	}
	out.Start = start

	if end, err := ve.GetEndAt(); err == nil && !end.IsZero() {
		if isFloating(ve.GetProperty(ical.ComponentPropertyDtEnd)) {
			end = asUTCWallClock(end)
		}
		out.End = end
	} else {
		// No DTEND/DURATION: treat as an hour-long event rather than
		// dropping it.
		out.End = out.Start.Add(time.Hour)
	}

	if startProp != nil && startProp.ICalParameters != nil {
		if tzs, ok := startProp.ICalParameters["TZID"]; ok && len(tzs) > 0 {
			out.StartTZ = tzs[0]
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// isFloating reports whether a date-time property carries neither a Z
// suffix nor a TZID parameter.
func isFloating(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	if strings.HasSuffix(strings.TrimSpace(p.Value), "Z") {
		return false
	}
	if p.ICalParameters != nil {
		if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
			return false
		}
	}
	return true
}

// asUTCWallClock keeps t's wall-clock reading but places it in UTC.
func asUTCWallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// parseICSTime parses the basic ICS date/date-time forms used by
// EXDATE and RECURRENCE-ID values.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	}
	return time.ParseInLocation("20060102", v, time.UTC)
}
