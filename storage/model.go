// Package storage implements the event log and materialized-view data
// model from spec.md §3: an append-only `events` table plus a `declarations`
// projection, the duplicate detector (§4.C), and the projection maintainer
// (§4.E). Grounded on sa/sa.go and sa/database.go (gorp/borp DbMap usage,
// dual-dialect driver registration) and sa/model.go (model struct +
// gorp table wiring).
package storage

import "time"

// EventType enumerates the kinds of entries the append-only log carries.
// Value 2 (Updated) is reserved per spec.md §9 ("UPDATED event type...
// Port the enum value; do not implement UPDATE flows until a spec for them
// exists") and is never emitted by this hub.
type EventType int

const (
	EventCreated EventType = 1
	EventUpdated EventType = 2
	EventDeleted EventType = 3
)

// EventRow is the gorp/borp row mapping for the `events` table. Field
// names match the column list in spec.md §6 ("Persisted state layout").
// Exported so sequencer, the sole writer, can construct rows directly
// without storage exposing its query helpers as the only entry point.
type EventRow struct {
	Seq       int64  `db:"seq"`
	EventType int    `db:"event_type"`
	IsccID    []byte `db:"iscc_id"`
	Nonce     []byte `db:"nonce"`
	Datahash  []byte `db:"datahash"`
	Pubkey    []byte `db:"pubkey"`
	IsccNote  string `db:"iscc_note"`
	EventTime string `db:"event_time"`
}

// NewEventRow builds an EventRow from the sequencer's decoded event
// material. eventTimeMicros is the timestamp the sequencer generated for
// this event, stored as event_time. For a CREATE it equals the ISCC-ID
// timestamp; a DELETE reuses its CREATE's ISCC-ID, so there it differs.
func NewEventRow(seq int64, eventType EventType, isccID, nonce, datahash, pubkey []byte, noteJSON string, eventTimeMicros int64) EventRow {
	sec := eventTimeMicros / 1_000_000
	micro := eventTimeMicros % 1_000_000
	t := time.Unix(sec, micro*1000).UTC()
	return EventRow{
		Seq:       seq,
		EventType: int(eventType),
		IsccID:    isccID,
		Nonce:     nonce,
		Datahash:  datahash,
		Pubkey:    pubkey,
		IsccNote:  noteJSON,
		EventTime: t.Format("2006-01-02 15:04:05.999999"),
	}
}

// Event is the exported, typed view of an append-only log entry returned
// by read operations (GetLatestCreate, AllEvents).
type Event struct {
	Seq       int64
	EventType EventType
	IsccID    []byte
	Nonce     []byte
	Datahash  []byte
	Pubkey    []byte
	IsccNote  string
	EventTime time.Time
}

func (e EventRow) toEvent() (Event, error) {
	t, err := time.Parse("2006-01-02 15:04:05.999999", e.EventTime)
	if err != nil {
		// Fall back to RFC3339 for rows written through other paths/tests.
		t, err = time.Parse(time.RFC3339Nano, e.EventTime)
		if err != nil {
			return Event{}, err
		}
	}
	return Event{
		Seq:       e.Seq,
		EventType: EventType(e.EventType),
		IsccID:    e.IsccID,
		Nonce:     e.Nonce,
		Datahash:  e.Datahash,
		Pubkey:    e.Pubkey,
		IsccNote:  e.IsccNote,
		EventTime: t,
	}, nil
}

// Declaration is the materialized current-state row for a live ISCC-ID,
// keyed by iscc_id (spec.md §3, IsccDeclaration).
type Declaration struct {
	IsccID    []byte `db:"iscc_id"`
	EventSeq  int64  `db:"event_seq"`
	IsccCode  string `db:"iscc_code"`
	Datahash  []byte `db:"datahash"`
	Nonce     []byte `db:"nonce"`
	Actor     string `db:"actor"`
	Gateway   string `db:"gateway"`
	Metahash  string `db:"metahash"`
	UpdatedAt string `db:"updated_at"`
	Redacted  bool   `db:"redacted"`
}
