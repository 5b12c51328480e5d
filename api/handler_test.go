package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"github.com/iscc/iscc-hub/isccid"
	"github.com/iscc/iscc-hub/log"
	"github.com/iscc/iscc-hub/notecrypto"
	"github.com/iscc/iscc-hub/receipt"
	"github.com/iscc/iscc-hub/sequencer"
	"github.com/iscc/iscc-hub/storage"
)

const testSigVersion = "ISCC-SIG v1.0"

func newTestHandler(t *testing.T) (*Handler, clock.FakeClock) {
	t.Helper()
	database, err := storage.Open("sqlite3", "file::memory:?cache=shared", log.NewNoop())
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := database.CreateTablesIfNotExists(); err != nil {
		t.Fatalf("creating tables: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	fc := clock.NewFake()
	fc.Set(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))

	seq := sequencer.New(database, 0, fc, log.NewNoop(), 3, time.Millisecond, 10*time.Millisecond)

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	builder, err := receipt.NewBuilder(notecrypto.EncodeMultibaseSeckey(seed), "hub.example.com", isccid.RealmSandbox, fc)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	h := NewHandler(Config{
		HubID:           0,
		Realm:           isccid.RealmSandbox,
		VerifySignature: true,
		VerifyHubID:     true,
		VerifyTimestamp: true,
		RequestTimeout:  5 * time.Second,
	}, database, seq, builder, log.NewNoop(), fc)

	return h, fc
}

// signedDeclaration builds a well-formed, correctly signed IsccNote JSON
// body with the nonce's top 12 bits set to hub id 0, for a distinct
// 32-byte digest selected by seed.
func signedDeclaration(t *testing.T, nonceSuffix byte, digestSeed byte) []byte {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return signedDeclarationAs(t, pub, priv, nonceSuffix, digestSeed)
}

// signedDeclarationAs is signedDeclaration with an explicit keypair, so a
// test can sign a later DELETE with the same actor as an earlier CREATE.
func signedDeclarationAs(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, nonceSuffix byte, digestSeed byte) []byte {
	t.Helper()
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = digestSeed + byte(i)
	}
	instanceUnit, err := notecrypto.EncodeInstanceUnit(digest)
	if err != nil {
		t.Fatal(err)
	}
	composed, err := notecrypto.ComposeISCC([]string{instanceUnit})
	if err != nil {
		t.Fatal(err)
	}

	// hub id 0 requires the nonce's top 12 bits to be zero; a 4-hex-char
	// zero prefix covers that with room to spare, and the trailing byte
	// varies to keep nonces unique across test declarations.
	nonce := "0000" + strings.Repeat("0", 26) + hex.EncodeToString([]byte{nonceSuffix})

	fields := map[string]interface{}{
		"iscc_code": composed,
		"datahash":  "1e20" + hex.EncodeToString(digest),
		"nonce":     nonce,
		"timestamp": "2026-07-31T12:00:00.000Z",
	}

	pubRaw := append([]byte{0xED, 0x01}, pub...)
	fields["signature"] = map[string]interface{}{
		"version": testSigVersion,
		"pubkey":  notecrypto.EncodeMultibaseZ(pubRaw),
		"proof":   "zPLACEHOLDER",
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	canonical, err := notecrypto.CanonicalizeJSONWithout(raw, "signature.proof")
	if err != nil {
		t.Fatal(err)
	}
	sig := ed25519.Sign(priv, canonical)
	fields["signature"].(map[string]interface{})["proof"] = notecrypto.EncodeMultibaseZ(sig)

	raw, err = json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func signedDelete(t *testing.T, isccID string, nonceSuffix byte) []byte {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return signedDeleteAs(t, pub, priv, isccID, nonceSuffix)
}

// signedDeleteAs is signedDelete with an explicit keypair.
func signedDeleteAs(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, isccID string, nonceSuffix byte) []byte {
	t.Helper()
	fields := map[string]interface{}{
		"iscc_id":   isccID,
		"nonce":     "0000" + strings.Repeat("0", 26) + hex.EncodeToString([]byte{nonceSuffix}),
		"timestamp": "2026-07-31T12:00:00.000Z",
	}
	pubRaw := append([]byte{0xED, 0x01}, pub...)
	fields["signature"] = map[string]interface{}{
		"version": testSigVersion,
		"pubkey":  notecrypto.EncodeMultibaseZ(pubRaw),
		"proof":   "zPLACEHOLDER",
	}
	raw, _ := json.Marshal(fields)
	canonical, err := notecrypto.CanonicalizeJSONWithout(raw, "signature.proof")
	if err != nil {
		t.Fatal(err)
	}
	sig := ed25519.Sign(priv, canonical)
	fields["signature"].(map[string]interface{})["proof"] = notecrypto.EncodeMultibaseZ(sig)
	raw, _ = json.Marshal(fields)
	return raw
}

func TestPostDeclarationCreatesAndReturnsReceipt(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	body := signedDeclaration(t, 1, 0)
	req := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var vc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &vc); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if vc["issuer"] != "did:web:hub.example.com" {
		t.Errorf("issuer = %v", vc["issuer"])
	}
	if _, ok := vc["proof"]; !ok {
		t.Errorf("expected a proof in the response, got %v", vc)
	}
}

func TestPostDeclarationRejectsDuplicateDatahash(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	body := signedDeclaration(t, 1, 10)

	req1 := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(string(body)))
	rec1 := httptest.NewRecorder()
	mux.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first request status = %d, body = %s", rec1.Code, rec1.Body.String())
	}

	body2 := signedDeclaration(t, 2, 10)
	req2 := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(string(body2)))
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Fatalf("second request status = %d, want 409, body = %s", rec2.Code, rec2.Body.String())
	}
}

func TestPostDeclarationRejectsMalformedBody(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	req := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(`{"bogus":true}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", rec.Code, rec.Body.String())
	}
}

func TestDeclarationLifecycleCreateThenDelete(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	createBody := signedDeclaration(t, 3, 20)
	createReq := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(string(createBody)))
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", createRec.Code, createRec.Body.String())
	}
	var vc map[string]interface{}
	if err := json.Unmarshal(createRec.Body.Bytes(), &vc); err != nil {
		t.Fatal(err)
	}
	declaration := vc["credentialSubject"].(map[string]interface{})["declaration"].(map[string]interface{})
	isccIDStr := declaration["iscc_id"].(string)

	deleteBody := signedDelete(t, isccIDStr, 4)
	deleteReq := httptest.NewRequest(http.MethodDelete, "/declaration/"+isccIDStr, strings.NewReader(string(deleteBody)))
	deleteRec := httptest.NewRecorder()
	mux.ServeHTTP(deleteRec, deleteReq)

	// A fresh keypair signs the delete, so it won't match the CREATE's
	// pubkey; the expected outcome is 401 unauthorized, exercising the
	// delete precondition chain up through the pubkey-match check.
	if deleteRec.Code != http.StatusUnauthorized {
		t.Fatalf("delete status = %d, want 401, body = %s", deleteRec.Code, deleteRec.Body.String())
	}
}

func TestDeleteUnknownIsccIDReturnsNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	isccIDStr := "ISCC:MAIWGQRD43YZQUAA"
	body := signedDelete(t, isccIDStr, 5)
	req := httptest.NewRequest(http.MethodDelete, "/declaration/"+isccIDStr, strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

func TestDeletePathBodyMismatchReturnsNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	body := signedDelete(t, "ISCC:MAIWGQRD43YZQUAA", 6)
	req := httptest.NewRequest(http.MethodDelete, "/declaration/ISCC:OTHERID00000000", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

// TestDeclarationLifecycleAuthorizedDeleteSucceeds exercises the full
// create-then-delete happy path: the same actor that signed the CREATE
// signs the DELETE, which must succeed with 204 (spec.md §4.G, §8
// scenario 1's delete leg).
func TestDeclarationLifecycleAuthorizedDeleteSucceeds(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	createBody := signedDeclarationAs(t, pub, priv, 7, 30)
	createReq := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(string(createBody)))
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", createRec.Code, createRec.Body.String())
	}
	var vc map[string]interface{}
	if err := json.Unmarshal(createRec.Body.Bytes(), &vc); err != nil {
		t.Fatal(err)
	}
	declaration := vc["credentialSubject"].(map[string]interface{})["declaration"].(map[string]interface{})
	isccIDStr := declaration["iscc_id"].(string)

	deleteBody := signedDeleteAs(t, pub, priv, isccIDStr, 8)
	deleteReq := httptest.NewRequest(http.MethodDelete, "/declaration/"+isccIDStr, strings.NewReader(string(deleteBody)))
	deleteRec := httptest.NewRecorder()
	mux.ServeHTTP(deleteRec, deleteReq)
	if deleteRec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204, body = %s", deleteRec.Code, deleteRec.Body.String())
	}

	// A second delete of the now-deleted iscc_id must report not found.
	redoBody := signedDeleteAs(t, pub, priv, isccIDStr, 9)
	redoReq := httptest.NewRequest(http.MethodDelete, "/declaration/"+isccIDStr, strings.NewReader(string(redoBody)))
	redoRec := httptest.NewRecorder()
	mux.ServeHTTP(redoRec, redoReq)
	if redoRec.Code != http.StatusNotFound {
		t.Fatalf("re-delete status = %d, want 404, body = %s", redoRec.Code, redoRec.Body.String())
	}
}

// TestForceDeclarationBypassesDuplicateCheck covers spec.md §8 scenario 2:
// a second declaration with the same datahash is normally rejected with
// 409, but X-Force-Declaration: true lets it through as a fresh 201.
func TestForceDeclarationBypassesDuplicateCheck(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	body := signedDeclaration(t, 10, 40)
	req1 := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(string(body)))
	rec1 := httptest.NewRecorder()
	mux.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first request status = %d, body = %s", rec1.Code, rec1.Body.String())
	}

	body2 := signedDeclaration(t, 11, 40)
	req2 := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(string(body2)))
	req2.Header.Set("X-Force-Declaration", "true")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusCreated {
		t.Fatalf("forced request status = %d, want 201, body = %s", rec2.Code, rec2.Body.String())
	}
}

// TestNonceReuseRejected covers spec.md §8 scenario 3: two declarations
// from the same actor reusing a nonce across distinct content must be
// rejected as nonce_reuse. The datahashes differ, so the duplicate-datahash
// check (which runs before sequencing) passes and the sequencer catches
// the nonce collision.
func TestNonceReuseRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Mux()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	body := signedDeclarationAs(t, pub, priv, 12, 50)
	req1 := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(string(body)))
	rec1 := httptest.NewRecorder()
	mux.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first request status = %d, body = %s", rec1.Code, rec1.Body.String())
	}

	// Same actor, same nonce suffix, different content: no duplicate-
	// datahash 409 applies, and the nonce collision is reported as 400.
	body2 := signedDeclarationAs(t, pub, priv, 12, 60)
	req2 := httptest.NewRequest(http.MethodPost, "/declaration", strings.NewReader(string(body2)))
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("nonce-reuse status = %d, want 400, body = %s", rec2.Code, rec2.Body.String())
	}
	var errBody map[string]interface{}
	if err := json.Unmarshal(rec2.Body.Bytes(), &errBody); err != nil {
		t.Fatal(err)
	}
	errObj := errBody["error"].(map[string]interface{})
	if errObj["code"] != "nonce_reuse" {
		t.Fatalf("error code = %v, want nonce_reuse", errObj["code"])
	}
}
