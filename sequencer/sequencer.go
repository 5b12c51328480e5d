// Package sequencer is the single-writer heart of the hub: it assigns
// gap-less sequence numbers and monotonic ISCC-ID timestamps to CREATE and
// DELETE events, serialized through the database's exclusive write lock.
// Grounded on original_source/iscc_hub/sequencer.py's sequence_iscc_note /
// sequence_iscc_delete, restructured in the teacher's style of a small
// struct with injected clock and config (compare ca/certificate-authority.go's
// CertificateAuthorityImpl holding a jmhodges/clock.Clock).
package sequencer

import (
	"math/rand"
	"time"

	"github.com/jmhodges/clock"

	"github.com/iscc/iscc-hub/db"
	"github.com/iscc/iscc-hub/errors"
	"github.com/iscc/iscc-hub/isccid"
	"github.com/iscc/iscc-hub/log"
	"github.com/iscc/iscc-hub/metrics"
	"github.com/iscc/iscc-hub/storage"
)

// maxDriftMicros is the bounded "timetravel" guard from spec.md §4.D step
// 5: when the wall clock has not advanced past the previous event's
// timestamp, the sequencer bumps that timestamp by 1us only while it lies
// at most 100ms ahead of the wall clock, and fails otherwise.
const maxDriftMicros = 100_000

// Result is the outcome of a successful sequencing call: the assigned
// sequence number and ISCC-ID body.
type Result struct {
	Seq    int64
	IsccID isccid.ID
}

// Sequencer owns the database connection, hub identity, and retry policy
// for event-log writes. One Sequencer per hub process; its database
// connection is the sole writer to the event log (spec.md §5,
// "single-writer invariant").
type Sequencer struct {
	db     *storage.DB
	hubID  int
	clock  clock.Clock
	logger log.Logger
	stats  metrics.Scope

	maxRetries int
	retryBase  time.Duration
	retryCap   time.Duration
}

// New builds a Sequencer. clk defaults to the real wall clock in
// production and is swapped for clock.NewFake in tests, matching the
// jmhodges/clock pattern used throughout the teacher (e.g.
// ca/certificate-authority.go).
func New(database *storage.DB, hubID int, clk clock.Clock, logger log.Logger, maxRetries int, retryBase, retryCap time.Duration) *Sequencer {
	return &Sequencer{
		db:         database,
		hubID:      hubID,
		clock:      clk,
		logger:     logger,
		stats:      metrics.NewNoopScope(),
		maxRetries: maxRetries,
		retryBase:  retryBase,
		retryCap:   retryCap,
	}
}

// SetStats wires a metrics.Scope into the sequencer, replacing the no-op
// default. Separate from New so tests and callers that don't care about
// metrics never have to thread one through.
func (s *Sequencer) SetStats(stats metrics.Scope) {
	s.stats = stats.NewScope("sequencer")
}

// CreateInput is the pre-decoded, already-validated material needed to
// sequence a CREATE event (spec.md §4.D step 1: "precompute pure bytes
// outside the transaction").
type CreateInput struct {
	NonceBytes    []byte
	DatahashBytes []byte
	PubkeyBytes   []byte
	NoteJSON      []byte
}

// DeleteInput is the equivalent precomputed material for a DELETE event.
// OriginalDatahash is the datahash of the CREATE event being dismissed,
// copied verbatim per spec.md §4.E ("datahash ... copied from the
// original CREATE for DELETEs").
type DeleteInput struct {
	IsccIDBody       isccid.ID
	NonceBytes       []byte
	PubkeyBytes      []byte
	OriginalDatahash []byte
	NoteJSON         []byte
}

// SequenceCreate implements spec.md §4.D's CREATE protocol: exclusive
// write transaction, gap-less seq, monotonic ISCC-ID timestamp, single
// insert, commit. Retries bounded lock-contention failures with jittered
// exponential backoff before giving up with a SequencerError.
func (s *Sequencer) SequenceCreate(in CreateInput) (Result, error) {
	return s.withRetry(func() (Result, error) {
		tx, err := s.db.BeginImmediate()
		if err != nil {
			return Result{}, errors.SequencerFailureError("beginning transaction: %v", err)
		}

		tail, found, err := storage.ReadTail(tx)
		if err != nil {
			return Result{}, db.Rollback(tx, errors.SequencerFailureError("reading tail: %v", err))
		}

		lastSeq := int64(0)
		lastTsMicros := int64(0)
		if found {
			lastSeq = tail.Seq
			id, err := isccid.FromBody(tail.IsccID)
			if err != nil {
				return Result{}, db.Rollback(tx, errors.SequencerFailureError("decoding tail iscc_id: %v", err))
			}
			lastTsMicros = id.TimestampMicros()
		}

		newTsMicros, err := s.nextTimestamp(lastTsMicros)
		if err != nil {
			return Result{}, db.Rollback(tx, err)
		}

		newID, err := isccid.Build(newTsMicros, s.hubID)
		if err != nil {
			return Result{}, db.Rollback(tx, errors.SequencerFailureError("building iscc_id: %v", err))
		}

		newSeq := lastSeq + 1
		row := storage.NewEventRow(newSeq, storage.EventCreated, newID.Bytes(), in.NonceBytes, in.DatahashBytes, in.PubkeyBytes, string(in.NoteJSON), newTsMicros)

		if err := storage.InsertEvent(tx, row); err != nil {
			return Result{}, db.Rollback(tx, translateInsertError(err))
		}

		if err := tx.Commit(); err != nil {
			return Result{}, errors.SequencerFailureError("committing: %v", err)
		}

		s.stats.Inc("create.committed", 1)
		return Result{Seq: newSeq, IsccID: newID}, nil
	})
}

// SequenceDelete implements spec.md §4.D's DELETE protocol: same tail
// read and locking discipline, but the ISCC-ID is the one the caller
// supplies (the CREATE event's ID), not a freshly built one, and the log
// must already be non-empty.
func (s *Sequencer) SequenceDelete(in DeleteInput) (Result, error) {
	return s.withRetry(func() (Result, error) {
		tx, err := s.db.BeginImmediate()
		if err != nil {
			return Result{}, errors.SequencerFailureError("beginning transaction: %v", err)
		}

		tail, found, err := storage.ReadTail(tx)
		if err != nil {
			return Result{}, db.Rollback(tx, errors.SequencerFailureError("reading tail: %v", err))
		}
		if !found {
			return Result{}, db.Rollback(tx, errors.SequencerFailureError("no previous event found"))
		}

		tailID, err := isccid.FromBody(tail.IsccID)
		if err != nil {
			return Result{}, db.Rollback(tx, errors.SequencerFailureError("decoding tail iscc_id: %v", err))
		}

		newTsMicros, err := s.nextTimestamp(tailID.TimestampMicros())
		if err != nil {
			return Result{}, db.Rollback(tx, err)
		}

		newSeq := tail.Seq + 1
		row := storage.NewEventRow(newSeq, storage.EventDeleted, in.IsccIDBody.Bytes(), in.NonceBytes, in.OriginalDatahash, in.PubkeyBytes, string(in.NoteJSON), newTsMicros)

		if err := storage.InsertEvent(tx, row); err != nil {
			return Result{}, db.Rollback(tx, translateInsertError(err))
		}

		if err := tx.Commit(); err != nil {
			return Result{}, errors.SequencerFailureError("committing: %v", err)
		}

		s.stats.Inc("delete.committed", 1)
		return Result{Seq: newSeq, IsccID: in.IsccIDBody}, nil
	})
}

// nextTimestamp implements spec.md §4.D step 5's monotonic generation
// with bounded drift guard. lastTsMicros of 0 means "no prior event" (the
// normal path always applies).
func (s *Sequencer) nextTimestamp(lastTsMicros int64) (int64, error) {
	nowMicros := s.clock.Now().UnixMicro()
	if nowMicros > lastTsMicros {
		return nowMicros, nil
	}
	drift := lastTsMicros - nowMicros
	if drift > maxDriftMicros {
		return 0, errors.SequencerFailureError("timetravel not allowed: drift %dus exceeds %dus bound", drift, maxDriftMicros)
	}
	return lastTsMicros + 1, nil
}

// withRetry runs op, retrying on lock-contention failures with jittered
// exponential backoff (spec.md §4.D, "Retries on lock contention are
// bounded with exponential backoff + jitter").
func (s *Sequencer) withRetry(op func() (Result, error)) (Result, error) {
	start := s.clock.Now()
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result, err := op()
		if err == nil {
			s.stats.TimingDuration("latency", s.clock.Since(start))
			return result, nil
		}
		if !isLockContention(err) {
			return Result{}, err
		}
		lastErr = err
		s.stats.Inc("lock_contention", 1)
		if attempt == s.maxRetries {
			break
		}
		s.logger.Warningf("sequencer: write lock contention, retrying (attempt %d): %v", attempt+1, err)
		time.Sleep(backoff(attempt, s.retryBase, s.retryCap))
	}
	s.stats.Inc("retries_exhausted", 1)
	return Result{}, errors.SequencerFailureError("exceeded %d retries on lock contention: %v", s.maxRetries, lastErr)
}

func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base << attempt
	if d > max || d <= 0 {
		d = max
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

func isLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "database is locked", "SQLITE_BUSY", "Lock wait timeout")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) > 0 && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// translateInsertError maps the events.nonce unique-constraint violation
// to errors.NonceReuse, the one sequencer-level failure the API
// distinguishes from a generic sequencer_error (spec.md §4.D step 8).
// SQLite reports "UNIQUE constraint failed: events.nonce"; MySQL reports
// "Duplicate entry '...' for key ... nonce".
func translateInsertError(err error) error {
	msg := err.Error()
	isUniqueViolation := containsAny(msg, "UNIQUE constraint failed", "Duplicate entry")
	if isUniqueViolation && containsAny(msg, "nonce") {
		return errors.NonceReuseError("nonce already used")
	}
	return errors.SequencerFailureError("inserting event: %v", err)
}
