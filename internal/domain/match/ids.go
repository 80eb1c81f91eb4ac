package match

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fuego-app/fuego/internal/domain"
)

// CheckIDs rejects a subject or cursor id that is not a UUID. The matching
// functions cast both to uuid, so anything else would fail inside the database.
func CheckIDs(subjectID string, cursor *Cursor) error {
	if _, err := uuid.Parse(subjectID); err != nil {
		return fmt.Errorf("profile_id must be a UUID: %w", domain.ErrInvalidArgument)
	}
	if cursor != nil {
		if _, err := uuid.Parse(cursor.ID()); err != nil {
			return fmt.Errorf("%w: id must be a UUID", ErrInvalidCursor)
		}
	}
	return nil
}
