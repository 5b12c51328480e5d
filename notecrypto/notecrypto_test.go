package notecrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestMultibasePubkeyRoundtrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	raw := append(append([]byte{}, ed25519MultibasePrefix[0], ed25519MultibasePrefix[1]), pub...)
	encoded := EncodeMultibaseZ(raw)
	decoded, err := DecodeMultibasePubkey(encoded)
	if err != nil {
		t.Fatalf("DecodeMultibasePubkey: %v", err)
	}
	if !decoded.Equal(pub) {
		t.Error("decoded pubkey does not match original")
	}
}

func TestVerifyEd25519(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	msg := []byte("hello hub")
	sig := ed25519.Sign(priv, msg)
	if !VerifyEd25519(pub, msg, sig) {
		t.Error("expected valid signature to verify")
	}
	if VerifyEd25519(pub, []byte("tampered"), sig) {
		t.Error("expected tampered message to fail verification")
	}
}

func TestCanonicalizeJCSSortsKeys(t *testing.T) {
	input := map[string]interface{}{
		"b": 1.0,
		"a": "x",
		"c": []interface{}{1.0, 2.0, 3.0},
	}
	got, err := CanonicalizeJCS(input)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":"x","b":1,"c":[1,2,3]}`
	if string(got) != want {
		t.Errorf("CanonicalizeJCS() = %s, want %s", got, want)
	}
}

func TestCanonicalizeJSONKeepsProof(t *testing.T) {
	raw := []byte(`{"signature":{"proof":"zABC","pubkey":"zXYZ"},"iscc_code":"ISCC:X"}`)
	got, err := CanonicalizeJSON(raw)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"iscc_code":"ISCC:X","signature":{"proof":"zABC","pubkey":"zXYZ"}}`
	if string(got) != want {
		t.Errorf("CanonicalizeJSON() = %s, want %s", got, want)
	}
}

func TestCanonicalizeJSONWithoutRemovesNestedField(t *testing.T) {
	raw := []byte(`{"signature":{"proof":"zABC","pubkey":"zXYZ"},"iscc_code":"ISCC:X"}`)
	got, err := CanonicalizeJSONWithout(raw, "signature.proof")
	if err != nil {
		t.Fatal(err)
	}
	want := `{"iscc_code":"ISCC:X","signature":{"pubkey":"zXYZ"}}`
	if string(got) != want {
		t.Errorf("CanonicalizeJSONWithout() = %s, want %s", got, want)
	}
}

func TestInstanceUnitAndCompose(t *testing.T) {
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}
	instanceUnit, err := EncodeInstanceUnit(digest)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeISCC(instanceUnit)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.MainType != MainTypeInstance {
		t.Errorf("MainType = %v, want MainTypeInstance", decoded.MainType)
	}
	if decoded.BitLen != 256 {
		t.Errorf("BitLen = %d, want 256", decoded.BitLen)
	}

	composed, err := ComposeISCC([]string{instanceUnit})
	if err != nil {
		t.Fatal(err)
	}
	composedUnit, err := DecodeISCC(composed)
	if err != nil {
		t.Fatal(err)
	}
	if composedUnit.MainType != MainTypeISCC {
		t.Errorf("composed MainType = %v, want MainTypeISCC", composedUnit.MainType)
	}
}
