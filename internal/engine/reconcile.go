package engine

import "calsync/internal/model"

// Reconcile diffs the records produced by this pass against the keys the
// store already holds for the group.
//
// Every current record is put unconditionally, even when byte-identical
// to what is stored; the rewrite refreshes LastUpdated and repairs any
// earlier partial write. Records that resolve to an already-claimed key
// (messy feeds repeat whole components) collapse to the first one seen:
// an atomic chunk must never target the same item twice. Deletes are
// exactly the stored keys that no current record claims, i.e.
// occurrences that vanished upstream. A uid reused with a different
// start produces a different sort key, so the old slot is deleted and a
// new one created with no move handling.
func Reconcile(newRecords []model.EventRecord, existing []model.Key) (puts []model.EventRecord, deletes []model.Key) {
	current := make(map[model.Key]struct{}, len(newRecords))
	puts = make([]model.EventRecord, 0, len(newRecords))
	for i := range newRecords {
		k := newRecords[i].Key()
		if _, dup := current[k]; dup {
			continue
		}
		current[k] = struct{}{}
		puts = append(puts, newRecords[i])
	}

	for _, k := range existing {
		if _, ok := current[k]; !ok {
			deletes = append(deletes, k)
		}
	}

	return puts, deletes
}
