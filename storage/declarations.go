package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iscc/iscc-hub/db"
)

// UpsertDeclaration writes or overwrites the projection row for a live
// ISCC-ID after a successful CREATE sequencing (spec.md §4.E). It runs
// outside the sequencer's transaction: the projection is idempotent,
// keyed by iscc_id, and recoverable by replay (Rebuild below).
func UpsertDeclaration(exec db.OneSelectExecer, d Declaration, now time.Time) error {
	d.UpdatedAt = now.UTC().Format(time.RFC3339Nano)

	existing, found, err := GetDeclaration(exec, d.IsccID)
	if err != nil {
		return err
	}
	if found {
		d.Redacted = existing.Redacted
		_, err := exec.Exec(
			`UPDATE declarations SET event_seq=?, iscc_code=?, datahash=?, nonce=?, actor=?, gateway=?, metahash=?, updated_at=?, redacted=? WHERE iscc_id=?`,
			d.EventSeq, d.IsccCode, d.Datahash, d.Nonce, d.Actor, d.Gateway, d.Metahash, d.UpdatedAt, d.Redacted, d.IsccID)
		if err != nil {
			return fmt.Errorf("storage: updating declaration: %w", err)
		}
		return nil
	}

	_, err = exec.Exec(
		`INSERT INTO declarations (iscc_id, event_seq, iscc_code, datahash, nonce, actor, gateway, metahash, updated_at, redacted) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.IsccID, d.EventSeq, d.IsccCode, d.Datahash, d.Nonce, d.Actor, d.Gateway, d.Metahash, d.UpdatedAt, false)
	if err != nil {
		return fmt.Errorf("storage: inserting declaration: %w", err)
	}
	return nil
}

// RemoveDeclaration deletes the projection row for iscc_id after a
// successful DELETE sequencing (spec.md §4.E).
func RemoveDeclaration(exec db.Execer, isccID []byte) error {
	_, err := exec.Exec("DELETE FROM declarations WHERE iscc_id = ?", isccID)
	if err != nil {
		return fmt.Errorf("storage: removing declaration: %w", err)
	}
	return nil
}

// GetDeclaration looks up the current projection row for an ISCC-ID.
func GetDeclaration(sel db.OneSelector, isccID []byte) (Declaration, bool, error) {
	var d Declaration
	err := sel.SelectOne(&d, "SELECT * FROM declarations WHERE iscc_id = ?", isccID)
	if err == sql.ErrNoRows {
		return Declaration{}, false, nil
	}
	if err != nil {
		return Declaration{}, false, fmt.Errorf("storage: declaration lookup: %w", err)
	}
	return d, true, nil
}

// SetRedacted flips the operator-controlled redaction flag on a live
// declaration without touching the event log, supplementing spec.md's
// data model with the "redacted" operator override mentioned in
// original_source/iscc_hub (takedown/compliance flag on the read surface,
// independent of the DELETE event type).
func SetRedacted(exec db.Execer, isccID []byte, redacted bool) error {
	_, err := exec.Exec("UPDATE declarations SET redacted = ? WHERE iscc_id = ?", redacted, isccID)
	if err != nil {
		return fmt.Errorf("storage: setting redacted flag: %w", err)
	}
	return nil
}

// NoteFields is the subset of an IsccNote's fields the projection needs
// beyond what's already on the event row (iscc_id, datahash, nonce).
type NoteFields struct {
	IsccCode string
	Actor    string
	Gateway  string
	Metahash string
}

// Rebuild replays the full event log in seq order and reconstructs the
// declarations projection from scratch, truncating any existing rows
// first. This is the operator tool spec.md §4.E allows for recovering a
// lost or corrupted projection (cmd/iscc-hub-reconciler). parseNote
// decodes a stored note's JSON into the fields the projection carries;
// it's supplied by the caller (the sequencer package owns the note
// shape) rather than imported directly, to keep storage free of a
// dependency on the note wire format.
func Rebuild(database *DB, parseNote func(noteJSON string) (NoteFields, error)) (rebuilt int, err error) {
	tx, err := database.Map.Begin()
	if err != nil {
		return 0, fmt.Errorf("storage: starting rebuild transaction: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM declarations"); err != nil {
		return 0, db.Rollback(tx, fmt.Errorf("storage: truncating declarations: %w", err))
	}

	events, err := AllEvents(tx)
	if err != nil {
		return 0, db.Rollback(tx, err)
	}

	for _, ev := range events {
		switch ev.EventType {
		case EventCreated:
			fields, ferr := parseNote(ev.IsccNote)
			if ferr != nil {
				return 0, db.Rollback(tx, fmt.Errorf("storage: parsing note for seq %d: %w", ev.Seq, ferr))
			}
			decl := Declaration{
				IsccID:   ev.IsccID,
				EventSeq: ev.Seq,
				IsccCode: fields.IsccCode,
				Datahash: ev.Datahash,
				Nonce:    ev.Nonce,
				Actor:    fields.Actor,
				Gateway:  fields.Gateway,
				Metahash: fields.Metahash,
			}
			if err := UpsertDeclaration(tx, decl, ev.EventTime); err != nil {
				return 0, db.Rollback(tx, err)
			}
		case EventDeleted:
			if err := RemoveDeclaration(tx, ev.IsccID); err != nil {
				return 0, db.Rollback(tx, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: committing rebuild: %w", err)
	}
	return len(events), nil
}
