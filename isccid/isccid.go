// Package isccid implements the ISCC-ID codec: the 10-byte canonical
// encoding (2-byte header + 8-byte body) that the sequencer assigns to
// every accepted declaration and deletion.
//
// Grounded on original_source/iscc_hub/iscc_id.py's IsccID class: a single
// newtype around the 8-byte body with conversion functions, so the codec's
// bit-packing logic never gets scattered across the sequencer, validator,
// and receipt builder (spec.md §9, "Cyclic/dual representations → a single
// codec module").
package isccid

import (
	"encoding/base32"
	"fmt"
)

// Realm selects the ISCC-ID header's SubType bits.
type Realm int

const (
	RealmSandbox     Realm = 0
	RealmOperational Realm = 1
)

// MaxTimestampMicros is the largest value that fits in the 52-bit
// timestamp field (2^52 - 1).
const MaxTimestampMicros = (1 << 52) - 1

// MaxHubID is the largest value that fits in the 12-bit hub-id field.
const MaxHubID = 4095

var base32Enc = base32.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567").WithPadding(base32.NoPadding)

func header(realm Realm) ([2]byte, error) {
	switch realm {
	case RealmSandbox:
		return [2]byte{0x60, 0x11}, nil // 0110 0000 0001 0001
	case RealmOperational:
		return [2]byte{0x61, 0x11}, nil // 0110 0001 0001 0001
	default:
		return [2]byte{}, fmt.Errorf("isccid: invalid realm %d", realm)
	}
}

// ID is an ISCC-ID's 8-byte body: a 52-bit microsecond timestamp packed
// with a 12-bit hub id. Equality, hashing, and ordering are defined on
// this body alone - the 2-byte header is a presentation concern that only
// the canonical string form carries.
type ID struct {
	body [8]byte
}

// Build constructs an ID from a microsecond timestamp and hub id,
// rejecting out-of-range inputs per spec.md §4.A.
func Build(tsMicros int64, hubID int) (ID, error) {
	if tsMicros < 0 {
		return ID{}, fmt.Errorf("isccid: timestamp must be non-negative, got %d", tsMicros)
	}
	if tsMicros > MaxTimestampMicros {
		return ID{}, fmt.Errorf("isccid: timestamp exceeds 52 bits, got %d", tsMicros)
	}
	if hubID < 0 || hubID > MaxHubID {
		return ID{}, fmt.Errorf("isccid: hub id must be in [0, 4095], got %d", hubID)
	}
	uintBody := (uint64(tsMicros) << 12) | uint64(hubID)
	var id ID
	for i := 7; i >= 0; i-- {
		id.body[i] = byte(uintBody)
		uintBody >>= 8
	}
	return id, nil
}

// FromBody constructs an ID from its raw 8-byte body.
func FromBody(body []byte) (ID, error) {
	if len(body) != 8 {
		return ID{}, fmt.Errorf("isccid: body must be 8 bytes, got %d", len(body))
	}
	var id ID
	copy(id.body[:], body)
	return id, nil
}

// Parse accepts the canonical "ISCC:..." string, the 10-byte header+body
// form, or the bare 8-byte body, and returns the decoded ID.
func Parse(value interface{}) (ID, error) {
	switch v := value.(type) {
	case string:
		return parseString(v)
	case []byte:
		switch len(v) {
		case 8:
			return FromBody(v)
		case 10:
			if mainType := v[0] >> 4; mainType != 0b0110 {
				return ID{}, fmt.Errorf("isccid: not an ISCC-ID (MainType %#x)", mainType)
			}
			return FromBody(v[2:])
		default:
			return ID{}, fmt.Errorf("isccid: byte value must be 8 or 10 bytes, got %d", len(v))
		}
	case ID:
		return v, nil
	default:
		return ID{}, fmt.Errorf("isccid: cannot parse value of type %T", value)
	}
}

const stringPrefix = "ISCC:"

func parseString(s string) (ID, error) {
	if len(s) <= len(stringPrefix) || s[:len(stringPrefix)] != stringPrefix {
		return ID{}, fmt.Errorf("isccid: string must start with %q", stringPrefix)
	}
	decoded, err := base32Enc.DecodeString(s[len(stringPrefix):])
	if err != nil {
		return ID{}, fmt.Errorf("isccid: invalid base32 encoding: %w", err)
	}
	if len(decoded) != 10 {
		return ID{}, fmt.Errorf("isccid: decoded length must be 10 bytes, got %d", len(decoded))
	}
	mainType := decoded[0] >> 4
	if mainType != 0b0110 {
		return ID{}, fmt.Errorf("isccid: not an ISCC-ID (MainType %#x)", mainType)
	}
	return FromBody(decoded[2:])
}

// String returns the canonical "ISCC:" base32 string for the given realm.
func (id ID) String(realm Realm) string {
	h, err := header(realm)
	if err != nil {
		// Build/Parse never produce an ID without a valid realm context;
		// callers choose the realm only at presentation time.
		return ""
	}
	buf := make([]byte, 0, 10)
	buf = append(buf, h[0], h[1])
	buf = append(buf, id.body[:]...)
	return stringPrefix + base32Enc.EncodeToString(buf)
}

// Bytes returns the raw 8-byte body.
func (id ID) Bytes() []byte {
	out := make([]byte, 8)
	copy(out, id.body[:])
	return out
}

// UintBody returns the body as an unsigned 64-bit integer.
func (id ID) UintBody() uint64 {
	var u uint64
	for _, b := range id.body {
		u = (u << 8) | uint64(b)
	}
	return u
}

// TimestampMicros returns the embedded microsecond timestamp.
func (id ID) TimestampMicros() int64 {
	return int64(id.UintBody() >> 12)
}

// HubID returns the embedded 12-bit hub id.
func (id ID) HubID() int {
	return int(id.UintBody() & 0xFFF)
}

// Equal reports whether two IDs have the same body.
func (id ID) Equal(other ID) bool {
	return id.body == other.body
}

// Less orders IDs first by timestamp, then by hub id, matching
// IsccID.__lt__ in the Python original.
func (id ID) Less(other ID) bool {
	if id.TimestampMicros() != other.TimestampMicros() {
		return id.TimestampMicros() < other.TimestampMicros()
	}
	return id.HubID() < other.HubID()
}
