package match

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCursor signals a cursor that is not exactly {score: number, id: string}.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the keyset continuation token: the rank key of the last candidate of a page.
type Cursor struct {
	score float64
	id    string
}

// EncodeCursor derives the cursor that continues after c.
func EncodeCursor(c Candidate) Cursor {
	return Cursor{score: c.score, id: c.matchID}
}

// Score returns the exclusive score bound.
func (c Cursor) Score() float64 { return c.score }

// ID returns the exclusive id tie-breaker.
func (c Cursor) ID() string { return c.id }

// Validate checks that the cursor can be used as a strict ordering bound.
func (c Cursor) Validate() error {
	if c.id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidCursor)
	}
	if math.IsNaN(c.score) || math.IsInf(c.score, 0) {
		return fmt.Errorf("%w: score must be finite", ErrInvalidCursor)
	}
	return nil
}

type cursorJSON struct {
	Score float64 `json:"score"`
	ID    string  `json:"id"`
}

// MarshalJSON renders the wire form {"score": ..., "id": ...}.
func (c Cursor) MarshalJSON() ([]byte, error) {
	return json.Marshal(cursorJSON{Score: c.score, ID: c.id}) //nolint:wrapcheck // plain struct
}

// UnmarshalJSON accepts only the exact wire form produced by MarshalJSON.
func (c *Cursor) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeCursor(data)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// DecodeCursor parses a raw JSON cursor. Partial objects, extra keys, a non-numeric
// score, a non-string or empty id, and non-object input are rejected.
func DecodeCursor(raw []byte) (Cursor, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Cursor{}, fmt.Errorf("%w: must be an object with score and id", ErrInvalidCursor)
	}
	if len(fields) != 2 {
		return Cursor{}, fmt.Errorf("%w: must contain exactly score and id", ErrInvalidCursor)
	}

	rawScore, ok := fields["score"]
	if !ok || !isJSONNumber(rawScore) {
		return Cursor{}, fmt.Errorf("%w: score must be a number", ErrInvalidCursor)
	}
	rawID, ok := fields["id"]
	if !ok || !isJSONString(rawID) {
		return Cursor{}, fmt.Errorf("%w: id must be a string", ErrInvalidCursor)
	}

	var cur Cursor
	if err := json.Unmarshal(rawScore, &cur.score); err != nil {
		return Cursor{}, fmt.Errorf("%w: score: %w", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(rawID, &cur.id); err != nil {
		return Cursor{}, fmt.Errorf("%w: id: %w", ErrInvalidCursor, err)
	}
	if err := cur.Validate(); err != nil {
		return Cursor{}, err
	}
	return cur, nil
}

func isJSONNumber(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9'))
}

func isJSONString(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '"'
}
