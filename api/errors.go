package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/iscc/iscc-hub/errors"
)

// statusForType maps spec.md §7's error taxonomy to HTTP status codes, the
// "single adapter mapping error kind -> status code" the propagation policy
// calls for. Grounded on wfe2/errors.go's probs.ProblemDetailsToStatusCode.
func statusForType(t errors.ErrorType) int {
	switch t {
	case errors.Validation, errors.InvalidFormat, errors.InvalidLength,
		errors.InvalidHex, errors.InvalidIscc, errors.TimestampOutOfRange,
		errors.NonceMismatch:
		return http.StatusUnprocessableEntity
	case errors.InvalidSignature:
		return http.StatusUnauthorized
	case errors.NonceReuse:
		return http.StatusBadRequest
	case errors.DuplicateDeclaration:
		return http.StatusConflict
	case errors.SequencerError:
		return http.StatusBadRequest
	case errors.NotFound:
		return http.StatusNotFound
	case errors.Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the spec.md §6 error response envelope:
// {"error": {"message", "code", "field"?, ...contextual keys}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Field   string            `json:"field,omitempty"`
	Context map[string]string `json:"-"`
}

func (d errorDetail) MarshalJSON() ([]byte, error) {
	flat := map[string]interface{}{
		"message": d.Message,
		"code":    d.Code,
	}
	if d.Field != "" {
		flat["field"] = d.Field
	}
	for k, v := range d.Context {
		flat[k] = v
	}
	return json.Marshal(flat)
}

// writeError renders err as an HTTP error response. ApiErrors produced by
// validator/sequencer/storage carry their own status+code; anything else
// (a programmer error, a database outage) is an uncaught 500 per spec.md
// §7's "any uncaught exception at the API edge is 500".
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	ae, ok := err.(*errors.ApiError)
	if !ok {
		h.logger.AuditErrf("api: uncaught internal error: %v", err)
		ae = &errors.ApiError{Type: errors.InternalServer, Detail: "internal server error"}
	}
	if ae.Type == errors.InternalServer {
		h.logger.AuditErrf("api: internal error: %s", ae.Detail)
	}

	status := statusForType(ae.Type)
	h.stats.Inc(fmt.Sprintf("error.%s", ae.Code()), 1)
	body := errorBody{Error: errorDetail{
		Message: ae.Detail,
		Code:    ae.Code(),
		Field:   ae.Field,
		Context: ae.Context,
	}}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		h.logger.Errf("api: encoding error response: %v", encErr)
	}
}
