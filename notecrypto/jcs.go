package notecrypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// CanonicalizeJCS serializes decoded JSON (as produced by
// json.Unmarshal(..., &interface{})) into JCS-style (RFC 8785) bytes:
// object keys sorted by the byte order of their UTF-8 encoding, no
// insignificant whitespace, strings escaped as encoding/json escapes them,
// integers below 1e15 written as plain integers and other numbers in Go's
// shortest 'g' form. It does not sort by UTF-16 code unit, does not leave
// <, > and & unescaped, and does not follow ECMAScript Number::toString
// for large or fractional numbers, so for such input its output differs
// from RFC 8785. This stands in for the `jcs.canonicalize`
// call in original_source/iscc_hub/sequencer.py and the JCS step
// `sign_json`/`verify_json` perform before signing.
func CanonicalizeJCS(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalizeJSON canonicalizes raw JSON bytes in full, matching spec.md
// §4.D step 1's `note_json = jcs_canonicalize(note)`, which canonicalizes
// the complete note — signature.proof included — before it is persisted to
// events.iscc_note and carried into the receipt's original_iscc_note.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("notecrypto: invalid JSON: %w", err)
	}
	return CanonicalizeJCS(decoded)
}

// CanonicalizeJSONWithout canonicalizes raw JSON bytes after removing the
// field at dotPath (e.g. "signature.proof"), matching the note
// canonicalization used for signature verification in spec.md §4.B step 10:
// "canonicalize the note excluding signature.proof using JCS".
func CanonicalizeJSONWithout(raw []byte, dotPath string) ([]byte, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("notecrypto: invalid JSON: %w", err)
	}
	removeDotPath(decoded, dotPath)
	return CanonicalizeJCS(decoded)
}

func removeDotPath(m map[string]interface{}, dotPath string) {
	i := bytes.IndexByte([]byte(dotPath), '.')
	if i < 0 {
		delete(m, dotPath)
		return
	}
	head, tail := dotPath[:i], dotPath[i+1:]
	if nested, ok := m[head].(map[string]interface{}); ok {
		removeDotPath(nested, tail)
	}
}

func writeCanonical(buf *bytes.Buffer, value interface{}) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
	case float64:
		buf.WriteString(formatNumber(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return err
		}
		buf.WriteString(formatNumber(f))
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("notecrypto: cannot canonicalize value of type %T", value)
	}
	return nil
}

// formatNumber renders a float64 using the shortest round-tripping decimal
// representation, matching JCS's ES Number::toString requirement for the
// integer-valued timestamps and sequence numbers this service signs.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
