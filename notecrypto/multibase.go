// Package notecrypto adapts the Ed25519/JCS signing primitives spec.md §1
// assumes are externally supplied ("sign_json, verify_json, sign_vc,
// key_from_secret ... are assumed to be provided"). It also stands in for
// the assumed ISCC component library's decode/compose/encode_instance
// functions with a minimal, self-consistent codec (see iscccode.go) -
// neither is a production cryptographic or ISCC-algorithm implementation;
// both exist only so the validator and receipt builder have something
// concrete to call, grounded on original_source/iscc_hub/sequencer.py's use
// of `base58.b58decode` and `jcs.canonicalize`.
package notecrypto

import (
	"fmt"

	"golang.org/x/crypto/ed25519"

	"github.com/mr-tron/base58"
)

// ed25519MultibasePrefix is the 2-byte varint prefix (0xED01) that
// identifies an Ed25519 public key under the multicodec/multibase scheme
// spec.md §3 requires for signature.pubkey.
var ed25519MultibasePrefix = [2]byte{0xED, 0x01}

// ed25519SeckeyMultibasePrefix is the varint-encoded multicodec code
// 0x1300 (ed25519-priv), used to multibase-encode the hub's signing seed
// in configuration (config.HubConfig.SecKey).
var ed25519SeckeyMultibasePrefix = [2]byte{0x80, 0x26}

// DecodeMultibasePubkey decodes a z-base58btc multibase Ed25519 public key
// (leading 'z', then base58 of a 2-byte multicodec prefix + 32 raw key
// bytes) into its raw 32-byte form.
func DecodeMultibasePubkey(multibaseKey string) (ed25519.PublicKey, error) {
	raw, err := decodeMultibaseZ(multibaseKey)
	if err != nil {
		return nil, err
	}
	if len(raw) != 2+ed25519.PublicKeySize {
		return nil, fmt.Errorf("notecrypto: decoded pubkey has wrong length %d", len(raw))
	}
	if raw[0] != ed25519MultibasePrefix[0] || raw[1] != ed25519MultibasePrefix[1] {
		return nil, fmt.Errorf("notecrypto: pubkey missing Ed25519 multicodec prefix")
	}
	return ed25519.PublicKey(raw[2:]), nil
}

// decodeMultibaseZ decodes the z-base58btc multibase encoding used
// throughout IsccNote (leading 'z' prefix, base58btc body).
func decodeMultibaseZ(value string) ([]byte, error) {
	if len(value) < 1 || value[0] != 'z' {
		return nil, fmt.Errorf("notecrypto: expected multibase z-prefix, got %q", value)
	}
	return base58.Decode(value[1:])
}

// EncodeMultibaseZ encodes raw bytes as a z-base58btc multibase string.
func EncodeMultibaseZ(raw []byte) string {
	return "z" + base58.Encode(raw)
}

// DecodeMultibaseSignature decodes a z-base58btc multibase Ed25519
// signature (signature.proof) into its raw 64-byte form.
func DecodeMultibaseSignature(multibaseSig string) ([]byte, error) {
	raw, err := decodeMultibaseZ(multibaseSig)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("notecrypto: decoded signature has wrong length %d", len(raw))
	}
	return raw, nil
}

// DecodeMultibaseSeckey decodes the hub's multibase-encoded Ed25519 signing
// seed into a usable ed25519.PrivateKey.
func DecodeMultibaseSeckey(multibaseKey string) (ed25519.PrivateKey, error) {
	raw, err := decodeMultibaseZ(multibaseKey)
	if err != nil {
		return nil, err
	}
	if len(raw) != 2+ed25519.SeedSize {
		return nil, fmt.Errorf("notecrypto: decoded seckey has wrong length %d", len(raw))
	}
	if raw[0] != ed25519SeckeyMultibasePrefix[0] || raw[1] != ed25519SeckeyMultibasePrefix[1] {
		return nil, fmt.Errorf("notecrypto: seckey missing Ed25519 multicodec prefix")
	}
	return ed25519.NewKeyFromSeed(raw[2:]), nil
}

// EncodeMultibaseSeckey encodes a 32-byte Ed25519 seed as a multibase
// secret key string, the inverse of DecodeMultibaseSeckey. Used by key
// generation tooling and tests.
func EncodeMultibaseSeckey(seed []byte) string {
	buf := make([]byte, 0, 2+len(seed))
	buf = append(buf, ed25519SeckeyMultibasePrefix[0], ed25519SeckeyMultibasePrefix[1])
	buf = append(buf, seed...)
	return EncodeMultibaseZ(buf)
}

// VerifyEd25519 verifies a raw Ed25519 signature over message with pubkey.
func VerifyEd25519(pubkey ed25519.PublicKey, message, signature []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, signature)
}
