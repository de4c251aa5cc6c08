package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/model"
)

func record(pk, sk string) model.EventRecord {
	return model.EventRecord{PartitionKey: pk, SortKey: sk}
}

func TestReconcileDiff(t *testing.T) {
	// Stored: A, B, C. Current: B, C, D. Expect delete A, put B/C/D.
	existing := []model.Key{
		{PartitionKey: "w1", SortKey: "A"},
		{PartitionKey: "w1", SortKey: "B"},
		{PartitionKey: "w2", SortKey: "C"},
	}
	current := []model.EventRecord{
		record("w1", "B"),
		record("w2", "C"),
		record("w2", "D"),
	}

	puts, deletes := Reconcile(current, existing)

	assert.Equal(t, current, puts, "every current record is rewritten")
	require.Len(t, deletes, 1)
	assert.Equal(t, model.Key{PartitionKey: "w1", SortKey: "A"}, deletes[0])
}

func TestReconcileEmptyStore(t *testing.T) {
	puts, deletes := Reconcile([]model.EventRecord{record("w1", "A")}, nil)

	assert.Len(t, puts, 1)
	assert.Empty(t, deletes)
}

func TestReconcileVanishedFeed(t *testing.T) {
	existing := []model.Key{
		{PartitionKey: "w1", SortKey: "A"},
		{PartitionKey: "w1", SortKey: "B"},
	}

	puts, deletes := Reconcile(nil, existing)

	assert.Empty(t, puts)
	assert.ElementsMatch(t, existing, deletes)
}

func TestReconcileCollapsesCollidingKeys(t *testing.T) {
	// A feed that repeats a component yields two records with the same
	// key; only the first survives, so no write chunk targets one item
	// twice.
	a := record("w1", "Monday#18:00#acme#e1")
	a.Title = "first"
	b := record("w1", "Monday#18:00#acme#e1")
	b.Title = "second"

	puts, deletes := Reconcile([]model.EventRecord{a, b, record("w1", "B")}, nil)

	require.Len(t, puts, 2)
	assert.Equal(t, "first", puts[0].Title)
	assert.Equal(t, "B", puts[1].SortKey)
	assert.Empty(t, deletes)
}

func TestReconcileReusedUIDWithNewStart(t *testing.T) {
	// A uid that moved produces a different sort key; the old slot is
	// deleted and the new one created.
	existing := []model.Key{{PartitionKey: "w1", SortKey: "Monday#18:00#acme#e1"}}
	current := []model.EventRecord{record("w1", "Tuesday#18:00#acme#e1")}

	puts, deletes := Reconcile(current, existing)

	require.Len(t, puts, 1)
	require.Len(t, deletes, 1)
	assert.Equal(t, "Monday#18:00#acme#e1", deletes[0].SortKey)
}
