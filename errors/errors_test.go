package errors

import "testing"

func TestCodeMapsEveryType(t *testing.T) {
	cases := map[ErrorType]string{
		InternalServer:       "internal_server_error",
		Validation:           "validation_failed",
		InvalidFormat:        "invalid_format",
		InvalidLength:        "invalid_length",
		InvalidHex:           "invalid_hex",
		InvalidIscc:          "invalid_iscc",
		TimestampOutOfRange:  "timestamp_out_of_range",
		NonceMismatch:        "nonce_mismatch",
		InvalidSignature:     "invalid_signature",
		NonceReuse:           "nonce_reuse",
		DuplicateDeclaration: "duplicate_declaration",
		SequencerError:       "sequencer_error",
		NotFound:             "not_found",
		Unauthorized:         "unauthorized",
	}
	for typ, want := range cases {
		ae := &ApiError{Type: typ}
		if got := ae.Code(); got != want {
			t.Errorf("type %v: Code() = %q, want %q", typ, got, want)
		}
	}
}

func TestErrorReturnsDetail(t *testing.T) {
	err := ValidationError("iscc_code", "must not be empty")
	if err.Error() != "must not be empty" {
		t.Fatalf("Error() = %q", err.Error())
	}
	ae, ok := err.(*ApiError)
	if !ok {
		t.Fatalf("expected *ApiError, got %T", err)
	}
	if ae.Field != "iscc_code" {
		t.Fatalf("Field = %q, want iscc_code", ae.Field)
	}
}

func TestDuplicateDeclarationErrorAttachesContext(t *testing.T) {
	err := DuplicateDeclarationError("ISCC:EXISTING", "zActor")
	ae, ok := err.(*ApiError)
	if !ok {
		t.Fatalf("expected *ApiError, got %T", err)
	}
	if ae.Type != DuplicateDeclaration {
		t.Fatalf("Type = %v, want DuplicateDeclaration", ae.Type)
	}
	if ae.Context["existing_iscc_id"] != "ISCC:EXISTING" || ae.Context["existing_actor"] != "zActor" {
		t.Fatalf("Context = %v", ae.Context)
	}
}

func TestNotFoundErrorAttachesContext(t *testing.T) {
	err := NotFoundError("declaration", "ISCC:X", "unknown iscc_id")
	ae := err.(*ApiError)
	if ae.Context["resource_type"] != "declaration" || ae.Context["resource_id"] != "ISCC:X" {
		t.Fatalf("Context = %v", ae.Context)
	}
}

func TestIsMatchesType(t *testing.T) {
	err := NonceReuseError("nonce already used")
	if !Is(err, NonceReuse) {
		t.Fatalf("expected Is(err, NonceReuse) to be true")
	}
	if Is(err, InvalidSignature) {
		t.Fatalf("expected Is(err, InvalidSignature) to be false")
	}
	if Is(nil, NonceReuse) {
		t.Fatalf("expected Is(nil, ...) to be false")
	}
}

func TestWithContextOnlyAppliesToApiError(t *testing.T) {
	plain := fmtError("not an ApiError")
	got := WithContext(plain, map[string]string{"k": "v"})
	if got != plain {
		t.Fatalf("expected WithContext to pass through a non-ApiError unchanged")
	}
}

func fmtError(msg string) error {
	return &notApiError{msg}
}

type notApiError struct{ msg string }

func (e *notApiError) Error() string { return e.msg }
