// Package receipt builds the signed W3C Verifiable Credential returned to
// callers of the declaration API (spec.md §4.F). Grounded on
// original_source/iscc_hub/receipt.py's build_iscc_receipt /
// derive_subject_did, restructured as a small builder type the way the
// teacher wraps signing state in wfe2's certificateProfiles / jose-backed
// nonceService rather than free functions over package globals.
package receipt

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmhodges/clock"

	"github.com/iscc/iscc-hub/isccid"
	"github.com/iscc/iscc-hub/notecrypto"
	"github.com/iscc/iscc-hub/storage"
)

// contextURL and credentialTypes are fixed by spec.md §4.F; the hub never
// extends or version-negotiates the VC shape.
const contextURL = "https://www.w3.org/ns/credentials/v2"

var credentialTypes = []interface{}{"VerifiableCredential", "IsccReceipt"}

// Builder holds the hub's signing identity: its Ed25519 key pair and the
// did:web issuer/controller DID derived from its domain.
type Builder struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	hubDID     string
	realm      isccid.Realm
	clock      clock.Clock
}

// NewBuilder constructs a Builder from the multibase-encoded signing seed
// and domain in configuration (config.HubConfig.SecKey / Domain). clk is
// injected the way every other stateful component in this codebase takes
// a jmhodges/clock.Clock, so proof "created" timestamps are deterministic
// in tests.
func NewBuilder(multibaseSeckey, domain string, realm isccid.Realm, clk clock.Clock) (*Builder, error) {
	priv, err := notecrypto.DecodeMultibaseSeckey(multibaseSeckey)
	if err != nil {
		return nil, fmt.Errorf("receipt: decoding hub signing key: %w", err)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("receipt: unexpected public key type %T", priv.Public())
	}
	return &Builder{
		privateKey: priv,
		publicKey:  pub,
		hubDID:     "did:web:" + domain,
		realm:      realm,
		clock:      clk,
	}, nil
}

// Build produces a signed IsccReceipt for ev: a CREATE or DELETE event
// already committed by the sequencer (spec.md §4.G, step after a
// successful sequence+projection update).
func (b *Builder) Build(ev storage.Event) (map[string]interface{}, error) {
	var note map[string]interface{}
	if err := json.Unmarshal([]byte(ev.IsccNote), &note); err != nil {
		return nil, fmt.Errorf("receipt: parsing stored iscc_note: %w", err)
	}

	signature, _ := note["signature"].(map[string]interface{})
	subjectDID, err := deriveSubjectDID(signature)
	if err != nil {
		return nil, err
	}

	id, err := isccid.FromBody(ev.IsccID)
	if err != nil {
		return nil, fmt.Errorf("receipt: decoding event iscc_id: %w", err)
	}

	vc := map[string]interface{}{
		"@context": []interface{}{contextURL},
		"type":     credentialTypes,
		"issuer":   b.hubDID,
		"credentialSubject": map[string]interface{}{
			"id": subjectDID,
			"declaration": map[string]interface{}{
				"seq":       float64(ev.Seq),
				"iscc_id":   id.String(b.realm),
				"iscc_note": note,
			},
		},
	}

	signed, err := b.sign(vc)
	if err != nil {
		return nil, err
	}
	return signed, nil
}

// deriveSubjectDID implements spec.md §4.F's subject identity rule:
// signature.controller if present and non-empty, else did:key:<pubkey>.
func deriveSubjectDID(signature map[string]interface{}) (string, error) {
	if controller, ok := signature["controller"].(string); ok && controller != "" {
		return controller, nil
	}
	pubkey, ok := signature["pubkey"].(string)
	if !ok || pubkey == "" {
		return "", fmt.Errorf("receipt: signature missing both controller and pubkey")
	}
	return "did:key:" + pubkey, nil
}

// sign attaches an eddsa-jcs-2022 DataIntegrityProof to vc, canonicalizing
// the unsigned document with JCS before signing (spec.md §4.F).
func (b *Builder) sign(vc map[string]interface{}) (map[string]interface{}, error) {
	canonical, err := notecrypto.CanonicalizeJCS(vc)
	if err != nil {
		return nil, fmt.Errorf("receipt: canonicalizing vc: %w", err)
	}
	sig := ed25519.Sign(b.privateKey, canonical)

	vc["proof"] = map[string]interface{}{
		"type":               "DataIntegrityProof",
		"cryptosuite":        "eddsa-jcs-2022",
		"created":            b.clock.Now().UTC().Format(time.RFC3339),
		"verificationMethod": b.hubDID + "#" + notecrypto.EncodeMultibaseZ(b.publicKey),
		"proofPurpose":       "assertionMethod",
		"proofValue":         notecrypto.EncodeMultibaseZ(sig),
	}
	return vc, nil
}
