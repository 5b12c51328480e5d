package storage

import (
	"database/sql"
	"fmt"

	"github.com/iscc/iscc-hub/db"
)

// TailEvent is the minimal projection of the most recent row in the event
// log, used by the sequencer's tail read (spec.md §4.D step 3).
type TailEvent struct {
	Seq    int64
	IsccID []byte
}

// ReadTail returns the most recently inserted event, or ok=false if the log
// is empty. Must run inside the sequencer's exclusive write transaction.
func ReadTail(tx db.OneSelector) (tail TailEvent, ok bool, err error) {
	var row EventRow
	err = tx.SelectOne(&row, "SELECT seq, iscc_id FROM events ORDER BY seq DESC LIMIT 1")
	if err == sql.ErrNoRows {
		return TailEvent{}, false, nil
	}
	if err != nil {
		return TailEvent{}, false, fmt.Errorf("storage: reading tail: %w", err)
	}
	return TailEvent{Seq: row.Seq, IsccID: row.IsccID}, true, nil
}

// InsertEvent appends one row to the event log inside the sequencer's
// transaction (spec.md §4.D step 7). The events.nonce column carries a
// unique constraint; callers translate the resulting driver error into
// errors.NonceReuse.
func InsertEvent(tx db.Inserter, ev EventRow) error {
	return tx.Insert(&ev)
}

// DuplicateMatch is the result of the duplicate detector (spec.md §4.C).
type DuplicateMatch struct {
	IsccID []byte
	Pubkey []byte
}

// FindDuplicateByDatahash implements the §4.C query: does a CREATE event
// already exist for this datahash? CREATEs that were later deleted match
// too.
func FindDuplicateByDatahash(sel db.OneSelector, datahash []byte) (DuplicateMatch, bool, error) {
	var row struct {
		IsccID []byte `db:"iscc_id"`
		Pubkey []byte `db:"pubkey"`
	}
	err := sel.SelectOne(&row,
		"SELECT iscc_id, pubkey FROM events WHERE datahash = ? AND event_type = ? LIMIT 1",
		datahash, int(EventCreated))
	if err == sql.ErrNoRows {
		return DuplicateMatch{}, false, nil
	}
	if err != nil {
		return DuplicateMatch{}, false, fmt.Errorf("storage: duplicate lookup: %w", err)
	}
	return DuplicateMatch{IsccID: row.IsccID, Pubkey: row.Pubkey}, true, nil
}

// GetLatestCreate returns the most recent CREATED event for an iscc_id, used
// by the delete pipeline's precondition checks (spec.md §4.G step 3).
func GetLatestCreate(sel db.OneSelector, isccID []byte) (Event, bool, error) {
	var row EventRow
	err := sel.SelectOne(&row,
		"SELECT * FROM events WHERE iscc_id = ? AND event_type = ? ORDER BY seq DESC LIMIT 1",
		isccID, int(EventCreated))
	if err == sql.ErrNoRows {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("storage: latest-create lookup: %w", err)
	}
	ev, err := row.toEvent()
	if err != nil {
		return Event{}, false, err
	}
	return ev, true, nil
}

// HasDeleteEvent reports whether a DELETED event already exists for an
// iscc_id (spec.md §4.G step 4: "If any DELETE event exists ... 404
// already deleted").
func HasDeleteEvent(sel db.OneSelector, isccID []byte) (bool, error) {
	var count int64
	err := sel.SelectOne(&count,
		"SELECT COUNT(*) FROM events WHERE iscc_id = ? AND event_type = ?",
		isccID, int(EventDeleted))
	if err != nil {
		return false, fmt.Errorf("storage: delete-event lookup: %w", err)
	}
	return count > 0, nil
}

// AllEvents streams the full event log in seq order, for the projection
// reconciler (spec.md §4.E, "An operator tool ... MAY rebuild the
// projection from scratch by scanning events in seq order").
func AllEvents(sel db.Selector) ([]Event, error) {
	rows, err := sel.Select(&[]EventRow{}, "SELECT * FROM events ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("storage: scanning events: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		model, ok := r.(*EventRow)
		if !ok {
			continue
		}
		ev, err := model.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
