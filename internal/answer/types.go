package answer

import (
	"encoding/json"
	"errors"

	"github.com/kalambet/askcards/internal/card"
)

// QueryRequest is the body of POST /api/query. Question holds the full
// message-content history with the newest user input last.
type QueryRequest struct {
	Question []string `json:"question"`
}

// Response is a successful answer. Cards is never nil.
type Response struct {
	Answer string      `json:"answer"`
	Cards  []card.Card `json:"cards"`
}

var errMissingAnswer = errors.New("response has no answer field")

// UnmarshalJSON requires an "answer" string; a missing or null "cards"
// decodes as an empty list.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		Answer *string     `json:"answer"`
		Cards  []card.Card `json:"cards"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Answer == nil {
		return errMissingAnswer
	}
	r.Answer = *raw.Answer
	r.Cards = raw.Cards
	if r.Cards == nil {
		r.Cards = []card.Card{}
	}
	return nil
}
