package notecrypto

import (
	"encoding/base32"
	"fmt"
)

// MainType enumerates the ISCC MainType nibble spec.md §4.B references
// (iscc_code must decode to MainType ISCC; units decompose into typed
// sub-codes, the last of which is always an Instance-Code).
//
// This file stands in for the ISCC component algorithm library spec.md §1
// names as an external dependency ("The core consumes a library exposing
// decode(iscc) -> (maintype, subtype, version, length, digest),
// compose(units) -> iscc, and encode_instance(hash) -> iscc_unit"). It is a
// minimal, internally-consistent codec sufficient to exercise the
// validator's cross-field and reconstruction checks - not a conformant
// implementation of the real ISCC algorithm suite, which spec.md
// explicitly places out of scope.
type MainType int

const (
	MainTypeMeta MainType = iota
	MainTypeContent
	MainTypeData
	MainTypeInstance
	MainTypeISCC
)

// SubType distinguishes the WIDE composite form (128-bit Instance/Data
// comparison) from the default 64-bit form, per spec.md §4.B step 9.
type SubType int

const (
	SubTypeNone SubType = iota
	SubTypeWide
)

// Unit is a decoded single-typed ISCC-UNIT or composite ISCC-CODE.
type Unit struct {
	MainType MainType
	SubType  SubType
	Version  int
	BitLen   int
	Digest   []byte
}

var unitEnc = base32.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567").WithPadding(base32.NoPadding)

const unitPrefix = "ISCC:"

// DecodeISCC decodes a canonical "ISCC:..." string into its components.
// Header layout: 1 byte MainType|SubType nibbles, 1 byte Version|reserved,
// 1 byte bit-length/8, remaining bytes are the digest.
func DecodeISCC(s string) (Unit, error) {
	if len(s) <= len(unitPrefix) || s[:len(unitPrefix)] != unitPrefix {
		return Unit{}, fmt.Errorf("notecrypto: ISCC string must start with %q", unitPrefix)
	}
	decoded, err := unitEnc.DecodeString(s[len(unitPrefix):])
	if err != nil {
		return Unit{}, fmt.Errorf("notecrypto: invalid base32 in ISCC string: %w", err)
	}
	if len(decoded) < 4 {
		return Unit{}, fmt.Errorf("notecrypto: ISCC string too short")
	}
	mt := MainType(decoded[0] >> 4)
	st := SubType(decoded[0] & 0x0F)
	version := int(decoded[1])
	bitLen := int(decoded[2]) * 8
	digest := decoded[3:]
	return Unit{MainType: mt, SubType: st, Version: version, BitLen: bitLen, Digest: digest}, nil
}

// encodeUnit is the inverse of DecodeISCC.
func encodeUnit(u Unit) string {
	header := []byte{
		byte(u.MainType)<<4 | byte(u.SubType),
		byte(u.Version),
		byte(u.BitLen / 8),
	}
	payload := append(header, u.Digest...)
	return unitPrefix + unitEnc.EncodeToString(payload)
}

// EncodeInstanceUnit builds the Instance-Code ISCC-UNIT for a 256-bit
// digest (SubType none, Version 0), matching
// original_source/iscc_hub/validators/iscc_note.py's
// datahash_to_instance_code.
func EncodeInstanceUnit(digest []byte) (string, error) {
	if len(digest) != 32 {
		return "", fmt.Errorf("notecrypto: instance digest must be 32 bytes, got %d", len(digest))
	}
	return encodeUnit(Unit{
		MainType: MainTypeInstance,
		SubType:  SubTypeNone,
		Version:  0,
		BitLen:   256,
		Digest:   digest,
	}), nil
}

// ComposeISCC reconstructs a composite ISCC-CODE from an ordered list of
// unit strings (Meta-/Content-/Data-Code units followed by the
// Instance-Code), matching ic.gen_iscc_code's role in
// validate_units_reconstruction. The composite digest is the
// concatenation of each unit's digest truncated to its minimum comparable
// length; SubType is WIDE if any contributing unit carries a 128-bit (or
// larger) digest, matching the 64-vs-128-bit comparison rule in spec.md
// §4.B step 9.
func ComposeISCC(units []string) (string, error) {
	if len(units) == 0 {
		return "", fmt.Errorf("notecrypto: cannot compose ISCC-CODE from zero units")
	}
	decoded := make([]Unit, 0, len(units))
	wide := false
	var digest []byte
	for _, us := range units {
		u, err := DecodeISCC(us)
		if err != nil {
			return "", err
		}
		decoded = append(decoded, u)
		n := 8
		if u.BitLen >= 128 {
			wide = true
			n = 16
		}
		if len(u.Digest) < n {
			return "", fmt.Errorf("notecrypto: unit digest shorter than expected")
		}
		digest = append(digest, u.Digest[:n]...)
	}
	subType := SubTypeNone
	if wide {
		subType = SubTypeWide
	}
	return encodeUnit(Unit{
		MainType: MainTypeISCC,
		SubType:  subType,
		Version:  0,
		BitLen:   len(digest) * 8,
		Digest:   digest,
	}), nil
}
