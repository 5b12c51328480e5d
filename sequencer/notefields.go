package sequencer

import (
	"encoding/json"
	"fmt"

	"github.com/iscc/iscc-hub/storage"
)

// ParseNoteFields extracts the projection-relevant fields from a stored
// CREATE event's canonicalized note JSON. Passed to storage.Rebuild so the
// storage package never needs to know the IsccNote wire shape.
func ParseNoteFields(noteJSON string) (storage.NoteFields, error) {
	var data struct {
		IsccCode string `json:"iscc_code"`
		Gateway  string `json:"gateway"`
		Metahash string `json:"metahash"`
		Signature struct {
			Pubkey string `json:"pubkey"`
		} `json:"signature"`
	}
	if err := json.Unmarshal([]byte(noteJSON), &data); err != nil {
		return storage.NoteFields{}, fmt.Errorf("sequencer: parsing stored note: %w", err)
	}
	return storage.NoteFields{
		IsccCode: data.IsccCode,
		Actor:    data.Signature.Pubkey,
		Gateway:  data.Gateway,
		Metahash: data.Metahash,
	}, nil
}
