// Package api implements the declaration HTTP surface: POST /declaration
// and DELETE /declaration/{iscc_id} (spec.md §4.G), orchestrating the
// validator, sequencer, projection, and receipt builder behind the
// bit-exact request/response contract of spec.md §6. Grounded on
// wfe2/wfe.go's HandleFunc wrapper (per-request timeout, method
// gating, structured error responses) generalized from ACME's resource
// set down to the hub's two endpoints.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmhodges/clock"

	"github.com/iscc/iscc-hub/errors"
	"github.com/iscc/iscc-hub/isccid"
	"github.com/iscc/iscc-hub/log"
	"github.com/iscc/iscc-hub/metrics"
	"github.com/iscc/iscc-hub/notecrypto"
	"github.com/iscc/iscc-hub/receipt"
	"github.com/iscc/iscc-hub/sequencer"
	"github.com/iscc/iscc-hub/storage"
	"github.com/iscc/iscc-hub/validator"
)

const maxRequestBody = 8192

// Handler wires the validator, sequencer, projection, and receipt builder
// into the declaration API. One Handler per hub process.
type Handler struct {
	db         *storage.DB
	sequencer  *sequencer.Sequencer
	receipts   *receipt.Builder
	logger     log.Logger
	clock      clock.Clock
	stats      metrics.Scope
	hubID      int
	realm      isccid.Realm
	verifySig  bool
	verifyHub  bool
	verifyTime bool
	timeout    time.Duration
}

// Config is the subset of config.HubConfig the API layer needs, passed
// explicitly rather than taking a dependency on the config package.
type Config struct {
	HubID           int
	Realm           isccid.Realm
	VerifySignature bool
	VerifyHubID     bool
	VerifyTimestamp bool
	RequestTimeout  time.Duration
}

// NewHandler builds a Handler. database, seq, and receipts must already be
// wired to the same underlying storage.
func NewHandler(cfg Config, database *storage.DB, seq *sequencer.Sequencer, receipts *receipt.Builder, logger log.Logger, clk clock.Clock) *Handler {
	return &Handler{
		db:         database,
		sequencer:  seq,
		receipts:   receipts,
		logger:     logger,
		clock:      clk,
		stats:      metrics.NewNoopScope(),
		hubID:      cfg.HubID,
		realm:      cfg.Realm,
		verifySig:  cfg.VerifySignature,
		verifyHub:  cfg.VerifyHubID,
		verifyTime: cfg.VerifyTimestamp,
		timeout:    cfg.RequestTimeout,
	}
}

// SetStats wires a metrics.Scope into the handler, replacing the no-op
// default set by NewHandler.
func (h *Handler) SetStats(stats metrics.Scope) {
	h.stats = stats.NewScope("api")
}

// Mux builds the *http.ServeMux serving the declaration API. Grounded on
// wfe2.Handler()'s single mux.Handle("/", ...) dispatcher, simplified to
// this hub's two routes since Go 1.20's ServeMux has no method- or
// wildcard-aware routing.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/declaration", h.withTimeout(h.handleDeclarationCreate))
	mux.HandleFunc("/declaration/", h.withTimeout(h.handleDeclarationDelete))
	return mux
}

// withTimeout enforces the per-request deadline spec.md §5 calls for
// ("per-request deadlines... SHOULD be enforced at the API edge").
func (h *Handler) withTimeout(next func(context.Context, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timeout := h.timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next(ctx, w, r.WithContext(ctx))
	}
}

func (h *Handler) validatorOptions() validator.Options {
	return validator.Options{
		VerifySignature: h.verifySig,
		VerifyHubID:     h.verifyHub,
		VerifyTimestamp: h.verifyTime,
		HubID:           h.hubID,
		Now:             h.clock.Now(),
	}
}

// handleDeclarationCreate implements spec.md §4.G's POST pipeline.
func (h *Handler) handleDeclarationCreate(_ context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody+1))
	if err != nil {
		h.writeError(w, errors.InvalidLengthError("", "could not read request body"))
		return
	}

	note, err := validator.Validate(raw, h.validatorOptions())
	if err != nil {
		h.writeError(w, err)
		return
	}

	// spec.md §4.D step 1: note_json is the full note, proof included,
	// canonicalized with JCS before it is ever persisted.
	noteJSON, err := notecrypto.CanonicalizeJSON(raw)
	if err != nil {
		h.writeError(w, errors.InvalidFormatError("", "could not canonicalize note: %v", err))
		return
	}

	if !forceDeclaration(r) {
		dup, found, err := storage.FindDuplicateByDatahash(h.db.Map, note.DatahashBytes)
		if err != nil {
			h.writeError(w, errors.InternalServerError("duplicate lookup failed: %v", err))
			return
		}
		if found {
			existingID, idErr := isccid.FromBody(dup.IsccID)
			existingIDStr := ""
			if idErr == nil {
				existingIDStr = existingID.String(h.realm)
			}
			h.writeError(w, errors.DuplicateDeclarationError(existingIDStr, pubkeyMultibase(dup.Pubkey)))
			return
		}
	}

	result, err := h.sequencer.SequenceCreate(sequencer.CreateInput{
		NonceBytes:    note.NonceBytes,
		DatahashBytes: note.DatahashBytes,
		PubkeyBytes:   note.PubkeyBytes,
		NoteJSON:      noteJSON,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	decl := storage.Declaration{
		IsccID:   result.IsccID.Bytes(),
		EventSeq: result.Seq,
		IsccCode: note.IsccCode,
		Datahash: note.DatahashBytes,
		Nonce:    note.NonceBytes,
		Actor:    note.Signature.Pubkey,
		Gateway:  note.Gateway,
		Metahash: note.Metahash,
	}
	// The event is already committed: a projection failure is logged and
	// the request still succeeds; the reconciler repairs the projection.
	if err := storage.UpsertDeclaration(h.db.Map, decl, h.clock.Now()); err != nil {
		h.logger.AuditErrf("api: projection upsert failed after commit for seq %d: %v", result.Seq, err)
	}

	vc, err := h.receipts.Build(storage.Event{
		Seq:      result.Seq,
		IsccID:   result.IsccID.Bytes(),
		IsccNote: string(noteJSON),
	})
	if err != nil {
		h.writeError(w, errors.InternalServerError("receipt build failed: %v", err))
		return
	}

	h.stats.Inc("declaration.created", 1)
	writeJSON(w, http.StatusCreated, vc)
}

// handleDeclarationDelete implements spec.md §4.G's DELETE pipeline.
func (h *Handler) handleDeclarationDelete(_ context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pathIsccID := strings.TrimPrefix(r.URL.Path, "/declaration/")
	if pathIsccID == "" {
		h.writeError(w, errors.NotFoundError("declaration", "", "missing iscc_id in path"))
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody+1))
	if err != nil {
		h.writeError(w, errors.InvalidLengthError("", "could not read request body"))
		return
	}

	note, err := validator.ValidateDelete(raw, h.validatorOptions())
	if err != nil {
		h.writeError(w, err)
		return
	}

	// spec.md §4.D step 1, applied to the DELETE note as well.
	noteJSON, err := notecrypto.CanonicalizeJSON(raw)
	if err != nil {
		h.writeError(w, errors.InvalidFormatError("", "could not canonicalize note: %v", err))
		return
	}

	if note.IsccID != pathIsccID {
		h.writeError(w, errors.NotFoundError("declaration", pathIsccID, "iscc_id in body does not match path"))
		return
	}

	latest, found, err := storage.GetLatestCreate(h.db.Map, note.IsccIDBody.Bytes())
	if err != nil {
		h.writeError(w, errors.InternalServerError("create lookup failed: %v", err))
		return
	}
	if !found {
		h.writeError(w, errors.NotFoundError("declaration", pathIsccID, "unknown iscc_id"))
		return
	}

	deleted, err := storage.HasDeleteEvent(h.db.Map, note.IsccIDBody.Bytes())
	if err != nil {
		h.writeError(w, errors.InternalServerError("delete lookup failed: %v", err))
		return
	}
	if deleted {
		h.writeError(w, errors.NotFoundError("declaration", pathIsccID, "declaration already deleted"))
		return
	}

	if !bytesEqual(note.PubkeyBytes, latest.Pubkey) {
		h.writeError(w, errors.UnauthorizedError("pubkey does not match the original declaration"))
		return
	}

	_, err = h.sequencer.SequenceDelete(sequencer.DeleteInput{
		IsccIDBody:       note.IsccIDBody,
		NonceBytes:       note.NonceBytes,
		PubkeyBytes:      note.PubkeyBytes,
		OriginalDatahash: latest.Datahash,
		NoteJSON:         noteJSON,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	// As for CREATE: a projection failure after commit is logged only.
	if err := storage.RemoveDeclaration(h.db.Map, note.IsccIDBody.Bytes()); err != nil {
		h.logger.AuditErrf("api: projection removal failed after commit for iscc_id %s: %v", pathIsccID, err)
	}

	h.stats.Inc("declaration.deleted", 1)
	w.WriteHeader(http.StatusNoContent)
}

// forceDeclaration reports whether X-Force-Declaration requests bypassing
// the duplicate check (spec.md §4.G: "case-insensitive true or 1").
func forceDeclaration(r *http.Request) bool {
	v := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Force-Declaration")))
	return v == "true" || v == "1"
}

// pubkeyMultibase re-encodes a stored raw Ed25519 pubkey as the multibase
// string IsccNote.signature.pubkey carries, for the duplicate_declaration
// error's existing_actor context (spec.md §6).
func pubkeyMultibase(raw []byte) string {
	return notecrypto.EncodeMultibaseZ(append([]byte{0xED, 0x01}, raw...))
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
