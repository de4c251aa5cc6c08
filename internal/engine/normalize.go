package engine

import (
	"time"

	"calsync/internal/model"
)

// Normalize converts a raw occurrence plus its owning group into the
// canonical persisted record. It is pure: unusable occurrences yield
// ok=false and are counted as skipped, never an error.
//
// An occurrence with neither its own URL nor a group fallback is dropped;
// a record without an actionable link is useless to readers. A group
// url_override always wins, even over the occurrence's own URL, so an
// organizer can point every occurrence at a single registration hub.
func Normalize(occ model.Occurrence, g model.Group, loc *time.Location, now time.Time) (model.EventRecord, bool) {
	startUTC := occ.Start.UTC()
	endUTC := occ.End.UTC()
	startLocal := startUTC.In(loc)
	endLocal := endUTC.In(loc)

	url := occ.URL
	if url == "" {
		url = g.FallbackURL
	}
	if g.URLOverride != "" {
		url = g.URLOverride
	}
	if url == "" {
		return model.EventRecord{}, false
	}

	sortKey := model.SortKeyFor(startLocal, g.ID, occ.UID)

	return model.EventRecord{
		PartitionKey: model.PartitionKeyFor(startLocal),
		SortKey:      sortKey,
		ID:           model.RecordID(sortKey),
		GroupID:      g.ID,
		GroupName:    g.Name,
		GroupWebsite: g.Website,
		Title:        occ.Summary,
		Description:  occ.Description,
		Location:     occ.Location,
		URL:          url,
		StartUTC:     startUTC,
		EndUTC:       endUTC,
		StartLocal:   startLocal,
		EndLocal:     endLocal,
		Status:       model.StatusApproved,
		LastUpdated:  now.UTC(),
	}, true
}
