// Package validator implements the pure, side-effect-free validation
// pipeline for IsccNote and IsccNoteDelete request bodies: spec.md §4.B's
// ten ordered, short-circuiting checks. It never touches the database and
// is safely parallelizable, matching
// original_source/iscc_hub/validators/iscc_note.py's validate_iscc_note
// but restructured as a single ordered pipeline over a raw JSON map,
// in the teacher's style of small top-to-bottom check functions (compare
// wfe2/wfe.go's request-validation helpers).
package validator

import (
	"encoding/hex"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/iscc/iscc-hub/errors"
	"github.com/iscc/iscc-hub/isccid"
	"github.com/iscc/iscc-hub/notecrypto"
)

const (
	maxNoteBytes   = 8192
	maxStringChars = 2048
	nonceHexLen    = 32
	hashHexLen     = 68
	hashPrefix     = "1e20"
	sigVersion     = "ISCC-SIG v1.0"
	maxUnits       = 4
	timestampSkew  = 10 * time.Minute
)

// Options gates the checks that require hub configuration or wall-clock
// access (spec.md §4.B: "Pure function: validate(note_bytes, *,
// verify_signature, verify_hub_id, verify_timestamp)").
type Options struct {
	VerifySignature bool
	VerifyHubID     bool
	VerifyTimestamp bool
	HubID           int
	Now             time.Time
}

// Signature is the parsed `signature` object of an IsccNote.
type Signature struct {
	Version    string
	Pubkey     string
	Proof      string
	Controller string
	Keyid      string
}

// Note is a validated IsccNote, carrying both the parsed fields and the
// decoded byte forms the sequencer and projection need.
type Note struct {
	IsccCode string
	Datahash string
	Nonce    string
	Timestamp string
	Gateway   string
	Metahash  string
	Units     []string
	Signature Signature

	DatahashBytes []byte
	NonceBytes    []byte
	PubkeyBytes   []byte

	// CanonicalJSON is the JCS canonicalization of the raw note with
	// signature.proof removed — the bytes that were signed. The event log
	// stores the full note, proof included (notecrypto.CanonicalizeJSON).
	CanonicalJSON []byte
}

// NoteDelete is a validated IsccNoteDelete.
type NoteDelete struct {
	IsccID     string
	IsccIDBody isccid.ID
	Nonce      string
	Timestamp  string
	Signature  Signature

	NonceBytes  []byte
	PubkeyBytes []byte

	CanonicalJSON []byte
}

var requiredNoteFields = []string{"iscc_code", "datahash", "nonce", "timestamp", "signature"}
var requiredDeleteFields = []string{"iscc_id", "nonce", "timestamp", "signature"}
var allowedNoteFields = map[string]bool{
	"iscc_code": true, "datahash": true, "nonce": true, "timestamp": true,
	"signature": true, "gateway": true, "metahash": true, "units": true,
}
var allowedDeleteFields = map[string]bool{
	"iscc_id": true, "nonce": true, "timestamp": true, "signature": true,
}
var allowedSignatureFields = map[string]bool{
	"version": true, "pubkey": true, "proof": true, "controller": true, "keyid": true,
}
var allowedResolverVars = map[string]bool{
	"iscc_id": true, "iscc_code": true, "pubkey": true, "datahash": true, "controller": true,
}

var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)
var templateVarRe = regexp.MustCompile(`\{([^{}]*)\}`)

// Validate runs the full spec.md §4.B pipeline over a raw IsccNote JSON
// payload.
func Validate(raw []byte, opts Options) (*Note, error) {
	if err := checkSize(raw); err != nil {
		return nil, err
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.ValidationError("", "body is not a JSON object: %v", err)
	}

	if err := checkAllowedFields(data, allowedNoteFields); err != nil {
		return nil, err
	}
	if err := checkRequiredFields(data, requiredNoteFields); err != nil {
		return nil, err
	}

	isccCode, err := stringField(data, "iscc_code")
	if err != nil {
		return nil, err
	}
	if err := checkIsccCode(isccCode); err != nil {
		return nil, err
	}

	datahash, err := stringField(data, "datahash")
	if err != nil {
		return nil, err
	}
	if err := checkMultihash(datahash, "datahash"); err != nil {
		return nil, err
	}

	nonce, err := stringField(data, "nonce")
	if err != nil {
		return nil, err
	}
	if err := checkNonce(nonce, opts); err != nil {
		return nil, err
	}

	timestamp, err := stringField(data, "timestamp")
	if err != nil {
		return nil, err
	}
	if err := checkTimestamp(timestamp, opts); err != nil {
		return nil, err
	}

	gateway, metahash, units, err := checkOptionalFields(data, datahash, isccCode)
	if err != nil {
		return nil, err
	}

	sig, err := checkSignatureStructure(data)
	if err != nil {
		return nil, err
	}

	if err := checkDatahashMatchesIscc(isccCode, datahash); err != nil {
		return nil, err
	}

	canonical, err := notecrypto.CanonicalizeJSONWithout(raw, "signature.proof")
	if err != nil {
		return nil, errors.ValidationError("", "canonicalization failed: %v", err)
	}

	pubkeyBytes, err := verifySignature(opts, sig, canonical)
	if err != nil {
		return nil, err
	}

	datahashBytes, _ := hex.DecodeString(datahash[len(hashPrefix):])
	nonceBytes, _ := hex.DecodeString(nonce)

	return &Note{
		IsccCode:      isccCode,
		Datahash:      datahash,
		Nonce:         nonce,
		Timestamp:     timestamp,
		Gateway:       gateway,
		Metahash:      metahash,
		Units:         units,
		Signature:     sig,
		DatahashBytes: datahashBytes,
		NonceBytes:    nonceBytes,
		PubkeyBytes:   pubkeyBytes,
		CanonicalJSON: canonical,
	}, nil
}

// ValidateDelete runs the same pipeline shape over an IsccNoteDelete body
// (spec.md §4.B: "same pipeline but the required fields are
// {iscc_id, nonce, timestamp, signature}").
func ValidateDelete(raw []byte, opts Options) (*NoteDelete, error) {
	if err := checkSize(raw); err != nil {
		return nil, err
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.ValidationError("", "body is not a JSON object: %v", err)
	}

	if err := checkAllowedFields(data, allowedDeleteFields); err != nil {
		return nil, err
	}
	if err := checkRequiredFields(data, requiredDeleteFields); err != nil {
		return nil, err
	}

	isccID, err := stringField(data, "iscc_id")
	if err != nil {
		return nil, err
	}
	isccIDBody, err := isccid.Parse(isccID)
	if err != nil {
		return nil, errors.New(errors.InvalidIscc, "iscc_id", "invalid iscc_id: %v", err)
	}

	nonce, err := stringField(data, "nonce")
	if err != nil {
		return nil, err
	}
	if err := checkNonce(nonce, opts); err != nil {
		return nil, err
	}

	timestamp, err := stringField(data, "timestamp")
	if err != nil {
		return nil, err
	}
	if err := checkTimestamp(timestamp, opts); err != nil {
		return nil, err
	}

	sig, err := checkSignatureStructure(data)
	if err != nil {
		return nil, err
	}

	canonical, err := notecrypto.CanonicalizeJSONWithout(raw, "signature.proof")
	if err != nil {
		return nil, errors.ValidationError("", "canonicalization failed: %v", err)
	}

	pubkeyBytes, err := verifySignature(opts, sig, canonical)
	if err != nil {
		return nil, err
	}

	nonceBytes, _ := hex.DecodeString(nonce)

	return &NoteDelete{
		IsccID:        isccID,
		IsccIDBody:    isccIDBody,
		Nonce:         nonce,
		Timestamp:     timestamp,
		Signature:     sig,
		NonceBytes:    nonceBytes,
		PubkeyBytes:   pubkeyBytes,
		CanonicalJSON: canonical,
	}, nil
}

func checkSize(raw []byte) error {
	if len(raw) > maxNoteBytes {
		return errors.InvalidLengthError("", "request body exceeds %d bytes", maxNoteBytes)
	}
	return nil
}

func checkAllowedFields(data map[string]interface{}, allowed map[string]bool) error {
	for k := range data {
		if !allowed[k] {
			return errors.ValidationError("", "unknown field %q", k)
		}
	}
	return nil
}

func checkRequiredFields(data map[string]interface{}, required []string) error {
	for _, f := range required {
		if _, ok := data[f]; !ok {
			return errors.ValidationError(f, "missing required field %q", f)
		}
	}
	return nil
}

func stringField(data map[string]interface{}, field string) (string, error) {
	v, ok := data[field].(string)
	if !ok {
		return "", errors.ValidationError(field, "%q must be a string", field)
	}
	if len(v) > maxStringChars {
		return "", errors.InvalidLengthError(field, "%q exceeds %d characters", field, maxStringChars)
	}
	return v, nil
}

func checkIsccCode(isccCode string) error {
	unit, err := notecrypto.DecodeISCC(isccCode)
	if err != nil {
		return errors.InvalidIsccError(err.Error())
	}
	if unit.MainType != notecrypto.MainTypeISCC {
		return errors.InvalidIsccError("iscc_code must be of MainType ISCC")
	}
	return nil
}

func checkMultihash(value, field string) error {
	if value != strings.ToLower(value) {
		return errors.InvalidFormatError(field, "%q must be lowercase", field)
	}
	if !strings.HasPrefix(value, hashPrefix) {
		return errors.InvalidFormatError(field, "%q must start with %q", field, hashPrefix)
	}
	if len(value) != hashHexLen {
		return errors.InvalidLengthError(field, "%q must be exactly %d characters", field, hashHexLen)
	}
	if _, err := hex.DecodeString(value[len(hashPrefix):]); err != nil {
		return errors.InvalidHexError(field, "%q must contain only hexadecimal characters", field)
	}
	return nil
}

func checkNonce(nonce string, opts Options) error {
	if nonce != strings.ToLower(nonce) {
		return errors.InvalidFormatError("nonce", "nonce must be lowercase")
	}
	if len(nonce) != nonceHexLen {
		return errors.InvalidLengthError("nonce", "nonce must be exactly %d characters", nonceHexLen)
	}
	raw, err := hex.DecodeString(nonce)
	if err != nil {
		return errors.InvalidHexError("nonce", "nonce must contain only hexadecimal characters")
	}
	if opts.VerifyHubID {
		extracted := (int(raw[0]) << 4) | (int(raw[1]) >> 4)
		if extracted != opts.HubID {
			return errors.NonceMismatchError("nonce hub id mismatch: expected %d, got %d", opts.HubID, extracted)
		}
	}
	return nil
}

func checkTimestamp(ts string, opts Options) error {
	if !timestampRe.MatchString(ts) {
		return errors.InvalidFormatError("timestamp", "timestamp must be RFC 3339 UTC with exactly 3 fractional digits and a Z suffix")
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return errors.InvalidFormatError("timestamp", "timestamp is not a valid RFC 3339 timestamp")
	}
	if opts.VerifyTimestamp {
		drift := opts.Now.Sub(parsed)
		if drift < 0 {
			drift = -drift
		}
		if drift > timestampSkew {
			return errors.TimestampOutOfRangeError("timestamp %s is outside the %s tolerance of hub time %s", ts, timestampSkew, opts.Now.Format(time.RFC3339Nano))
		}
	}
	return nil
}

func checkOptionalFields(data map[string]interface{}, datahash, isccCode string) (gateway, metahash string, units []string, err error) {
	if v, ok := data["metahash"]; ok {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", "", nil, errors.ValidationError("metahash", "metahash must not be empty")
		}
		if err := checkMultihash(s, "metahash"); err != nil {
			return "", "", nil, err
		}
		metahash = s
	}

	if v, ok := data["gateway"]; ok {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", "", nil, errors.ValidationError("gateway", "gateway must not be empty")
		}
		if err := checkGateway(s); err != nil {
			return "", "", nil, err
		}
		gateway = s
	}

	if v, ok := data["units"]; ok {
		list, ok := v.([]interface{})
		if !ok || len(list) == 0 {
			return "", "", nil, errors.ValidationError("units", "units must be a non-empty array")
		}
		if len(list) > maxUnits {
			return "", "", nil, errors.InvalidLengthError("units", "units must have at most %d entries", maxUnits)
		}
		strs := make([]string, len(list))
		for i, u := range list {
			s, ok := u.(string)
			if !ok {
				return "", "", nil, errors.ValidationError("units", "units[%d] must be a string", i)
			}
			strs[i] = s
		}
		if err := checkUnitsReconstruction(strs, datahash, isccCode); err != nil {
			return "", "", nil, err
		}
		units = strs
	}

	return gateway, metahash, units, nil
}

func checkGateway(gateway string) error {
	if strings.Count(gateway, "{") != strings.Count(gateway, "}") {
		return errors.InvalidFormatError("gateway", "gateway has unbalanced URI template braces")
	}
	matches := templateVarRe.FindAllStringSubmatch(gateway, -1)
	if len(matches) > 0 {
		for _, m := range matches {
			if !allowedResolverVars[m[1]] {
				return errors.InvalidFormatError("gateway", "gateway contains unsupported template variable %q", m[1])
			}
		}
		return nil
	}
	parsed, err := url.Parse(gateway)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errors.InvalidFormatError("gateway", "gateway must be a valid URL or URI template")
	}
	return nil
}

func checkUnitsReconstruction(units []string, datahash, isccCode string) error {
	digest, err := hex.DecodeString(datahash[len(hashPrefix):])
	if err != nil {
		return errors.InvalidHexError("datahash", "datahash must contain only hexadecimal characters")
	}
	instanceUnit, err := notecrypto.EncodeInstanceUnit(digest)
	if err != nil {
		return errors.ValidationError("units", "cannot derive instance unit: %v", err)
	}
	composed, err := notecrypto.ComposeISCC(append(append([]string{}, units...), instanceUnit))
	if err != nil {
		return errors.InvalidIsccError("units and datahash do not compose: %v", err)
	}
	if composed != isccCode {
		return errors.InvalidIsccError("units and datahash do not reconstruct iscc_code")
	}
	return nil
}

func checkSignatureStructure(data map[string]interface{}) (Signature, error) {
	raw, ok := data["signature"].(map[string]interface{})
	if !ok {
		return Signature{}, errors.ValidationError("signature", "signature must be an object")
	}
	for k := range raw {
		if !allowedSignatureFields[k] {
			return Signature{}, errors.ValidationError("signature", "unknown field %q in signature", k)
		}
	}
	for _, f := range []string{"version", "proof", "pubkey"} {
		if _, ok := raw[f]; !ok {
			return Signature{}, errors.ValidationError("signature", "missing required field %q in signature", f)
		}
	}
	version, _ := raw["version"].(string)
	if version != sigVersion {
		return Signature{}, errors.InvalidSignatureError("signature.version must be %q", sigVersion)
	}
	pubkey, _ := raw["pubkey"].(string)
	proof, _ := raw["proof"].(string)
	controller, _ := raw["controller"].(string)
	keyid, _ := raw["keyid"].(string)
	return Signature{Version: version, Pubkey: pubkey, Proof: proof, Controller: controller, Keyid: keyid}, nil
}

func checkDatahashMatchesIscc(isccCode, datahash string) error {
	compositeUnit, err := notecrypto.DecodeISCC(isccCode)
	if err != nil {
		return errors.InvalidIsccError(err.Error())
	}

	digest, err := hex.DecodeString(datahash[len(hashPrefix):])
	if err != nil {
		return errors.InvalidHexError("datahash", "datahash must contain only hexadecimal characters")
	}

	n := 8
	if compositeUnit.SubType == notecrypto.SubTypeWide {
		n = 16
	}
	if len(compositeUnit.Digest) < n || len(digest) < n {
		return errors.InvalidFormatError("datahash", "datahash does not match ISCC Instance-Code")
	}
	if !bytesEqual(compositeUnit.Digest[len(compositeUnit.Digest)-n:], digest[:n]) {
		return errors.InvalidFormatError("datahash", "datahash does not match ISCC Instance-Code")
	}
	return nil
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

func verifySignature(opts Options, sig Signature, canonical []byte) ([]byte, error) {
	pub, err := notecrypto.DecodeMultibasePubkey(sig.Pubkey)
	if err != nil {
		return nil, errors.InvalidSignatureError("invalid signature.pubkey: %v", err)
	}
	if !opts.VerifySignature {
		return pub, nil
	}
	proofSig, err := notecrypto.DecodeMultibaseSignature(sig.Proof)
	if err != nil {
		return nil, errors.InvalidSignatureError("invalid signature.proof: %v", err)
	}
	if !notecrypto.VerifyEd25519(pub, canonical, proofSig) {
		return nil, errors.InvalidSignatureError("signature does not verify")
	}
	return pub, nil
}
