package match

import (
	"errors"
	"testing"

	"github.com/fuego-app/fuego/internal/domain"
)

func TestCheckIDs(t *testing.T) {
	const subject = "0b2f6a3e-1c1d-4a55-9c4f-3d2e1f0a9b8c"
	good := EncodeCursor(NewCandidate("7d1c2b3a-4e5f-4a6b-8c7d-9e0f1a2b3c4d", 0.5))
	bad := EncodeCursor(NewCandidate("p-2", 0.5))

	tests := []struct {
		name    string
		subject string
		cursor  *Cursor
		want    error
	}{
		{"first page", subject, nil, nil},
		{"with cursor", subject, &good, nil},
		{"subject not a uuid", "p-own", nil, domain.ErrInvalidArgument},
		{"empty subject", "", nil, domain.ErrInvalidArgument},
		{"cursor id not a uuid", subject, &bad, ErrInvalidCursor},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckIDs(tc.subject, tc.cursor)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
