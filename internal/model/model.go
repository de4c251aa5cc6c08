package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// StatusApproved is the status assigned to every feed-sourced record.
// Feeds are configured by trusted organizers, so their events skip the
// moderation queue that manually submitted events go through.
const StatusApproved = "APPROVED"

// Group is one external organizer whose feed is aggregated. Groups are
// created and edited elsewhere; the engine only reads them.
type Group struct {
	ID          string
	Name        string
	FeedURL     string
	FallbackURL string // used when an occurrence carries no URL of its own
	URLOverride string // when set, replaces every occurrence URL unconditionally
	Website     string
	Active      bool
}

// Occurrence is one concrete calendar instance (a standalone event or a
// single expanded instance of a recurring series). It only lives for the
// duration of one processing pass.
type Occurrence struct {
	UID string

	Summary     string
	Description string
	Location    string
	URL         string

	// Start / End are in the event's own timezone as parsed from the feed.
	Start time.Time
	End   time.Time

	// RawTimezone is the TZID parameter of DTSTART, if any.
	RawTimezone string
}

// EventRecord is the canonical persisted unit.
type EventRecord struct {
	PartitionKey string `dynamodbav:"PK"`
	SortKey      string `dynamodbav:"SK"`
	ID           string `dynamodbav:"ID"`

	GroupID      string `dynamodbav:"GroupID"`
	GroupName    string `dynamodbav:"GroupName"`
	GroupWebsite string `dynamodbav:"GroupWebsite,omitempty"`

	Title       string `dynamodbav:"Title"`
	Description string `dynamodbav:"Description,omitempty"`
	Location    string `dynamodbav:"Location,omitempty"`
	URL         string `dynamodbav:"URL"`

	StartUTC   time.Time `dynamodbav:"StartUTC"`
	EndUTC     time.Time `dynamodbav:"EndUTC"`
	StartLocal time.Time `dynamodbav:"StartLocal"`
	EndLocal   time.Time `dynamodbav:"EndLocal"`

	Status      string    `dynamodbav:"Status"`
	LastUpdated time.Time `dynamodbav:"LastUpdated"`
}

// Key is the composite primary key of an EventRecord.
type Key struct {
	PartitionKey string `dynamodbav:"PK"`
	SortKey      string `dynamodbav:"SK"`
}

func (r *EventRecord) Key() Key {
	return Key{PartitionKey: r.PartitionKey, SortKey: r.SortKey}
}

// PartitionKeyFor buckets a localized start time into its ISO week,
// e.g. 2026-03-02 -> "EventsForWeek2026-W10". Local time drives the
// bucket so that records land in the week users will see them in.
func PartitionKeyFor(startLocal time.Time) string {
	year, week := startLocal.ISOWeek()
	return fmt.Sprintf("EventsForWeek%d-W%02d", year, week)
}

// SortKeyFor builds the per-occurrence key within a week partition.
// Weekday and time keep records naturally ordered for display; group id
// and uid keep two groups meeting at the same local time from colliding.
func SortKeyFor(startLocal time.Time, groupID, uid string) string {
	return fmt.Sprintf("%s#%s#%s#%s", startLocal.Weekday(), startLocal.Format("15:04"), groupID, uid)
}

// RecordID derives the stable external identifier from a sort key.
func RecordID(sortKey string) string {
	sum := sha256.Sum256([]byte(sortKey))
	return hex.EncodeToString(sum[:])
}
