package ics

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"

	"calsync/internal/model"
)

// maxOccurrencesPerEvent caps expansion of a single series so a
// pathological RRULE cannot flood a pass.
const maxOccurrencesPerEvent = 1000

// Expand parses a calendar payload and expands it into concrete
// occurrences whose start falls within [windowStart, windowEnd].
// Recurring components yield one occurrence per instance in the window;
// non-recurring components yield at most one.
func Expand(body []byte, windowStart, windowEnd time.Time) ([]model.Occurrence, error) {
	if windowEnd.Before(windowStart) {
		return nil, errors.New("expand: window end is before window start")
	}

	events, err := Parse(body)
	if err != nil {
		return nil, err
	}
	return expandEvents(events, windowStart, windowEnd), nil
}

func expandEvents(events []ParsedEvent, windowStart, windowEnd time.Time) []model.Occurrence {
	// Group base events and their RECURRENCE-ID overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	uids := make([]string, 0, len(events))

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	out := make([]model.Occurrence, 0, len(events))
	for _, uid := range uids {
		for _, ev := range baseByUID[uid] {
			out = append(out, expandEvent(ev, overridesByUID[uid], windowStart, windowEnd)...)
		}
	}
	return out
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, windowStart, windowEnd time.Time) []model.Occurrence {
	if ev.RawRRule == "" {
		if ev.Start.Before(windowStart) || ev.Start.After(windowEnd) {
			return nil
		}
		start, end, src := applyOverride(ev, overrides, ev.Start, ev.End)
		return []model.Occurrence{makeOccurrence(src, start, end)}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		slog.Warn("dropping component with unparseable RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "error", err)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	starts := set.Between(windowStart.In(ev.Start.Location()), windowEnd.In(ev.Start.Location()), true)
	if len(starts) > maxOccurrencesPerEvent {
		slog.Warn("truncating recurrence expansion", "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		starts = starts[:maxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]model.Occurrence, 0, len(starts))
	for _, occStart := range starts {
		start, end, src := applyOverride(ev, overrides, occStart, occStart.Add(dur))
		out = append(out, makeOccurrence(src, start, end))
	}
	return out
}

// applyOverride swaps in the override VEVENT whose RECURRENCE-ID matches
// the instance start, if one exists.
func applyOverride(base ParsedEvent, overrides []ParsedEvent, start, end time.Time) (time.Time, time.Time, ParsedEvent) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(start.Location()).Equal(start) {
			return ov.Start, ov.End, ov
		}
	}
	return start, end, base
}

func makeOccurrence(ev ParsedEvent, start, end time.Time) model.Occurrence {
	return model.Occurrence{
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		URL:         ev.URL,
		Start:       start,
		End:         end,
		RawTimezone: ev.StartTZ,
	}
}
