package match

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuego-app/fuego/internal/db"
	"github.com/fuego-app/fuego/internal/domain"
	dommatch "github.com/fuego-app/fuego/internal/domain/match"
)

const (
	subjectID = "0b2f6a3e-1c1d-4a55-9c4f-3d2e1f0a9b8c"
	matchP2   = "2a8e4c1f-7b3d-4e6a-9f0c-1d2e3f4a5b6c"
	matchP3   = "3b9f5d2a-8c4e-4f7b-a01d-2e3f4a5b6c7d"
	matchP9   = "9c0a6e3b-9d5f-4a8c-b12e-3f4a5b6c7d8e"
)

func setupRepo(t *testing.T, function string) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	repo, err := New(sqlx.NewDb(conn, "postgres"), function)
	require.NoError(t, err)
	return repo, mock
}

func TestFindMatchesCursor_FirstPage(t *testing.T) {
	repo, mock := setupRepo(t, "find_matches_cursor")

	rows := sqlmock.NewRows([]string{"match_id", "score"}).
		AddRow(matchP2, 0.91).
		AddRow(matchP3, 0.87)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT match_id, score FROM find_matches_cursor($1::uuid, $2::int, $3::float8, $4::uuid)")).
		WithArgs(subjectID, 2, nil, nil).
		WillReturnRows(rows)

	got, err := repo.FindMatchesCursor(context.Background(), subjectID, 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, matchP2, got[0].MatchID())
	assert.Equal(t, 0.87, got[1].Score())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMatchesCursor_PassesCursorBound(t *testing.T) {
	repo, mock := setupRepo(t, "find_matches_pgvector")

	cur := dommatch.EncodeCursor(dommatch.NewCandidate(matchP3, 0.87))
	mock.ExpectQuery(regexp.QuoteMeta("FROM find_matches_pgvector(")).
		WithArgs(subjectID, 10, 0.87, matchP3).
		WillReturnRows(sqlmock.NewRows([]string{"match_id", "score"}))

	got, err := repo.FindMatchesCursor(context.Background(), subjectID, 10, &cur)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMatchesCursor_StoreError(t *testing.T) {
	repo, mock := setupRepo(t, "find_matches_cursor")

	mock.ExpectQuery("find_matches_cursor").WillReturnError(errors.New("function does not exist"))

	_, err := repo.FindMatchesCursor(context.Background(), subjectID, 10, nil)
	require.Error(t, err)
	var dbErr *db.Error
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, db.OpSelect, dbErr.Op)
	assert.Contains(t, err.Error(), "find_matches_cursor")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestFindMatchesOffset(t *testing.T) {
	repo, mock := setupRepo(t, "find_matches_cursor")
	repo, err := repo.WithOffsetFunction("find_matches")
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT match_id, score FROM find_matches($1::uuid, $2::int, $3::int)")).
		WithArgs(subjectID, 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"match_id", "score"}).AddRow(matchP9, 0.4))

	got, err := repo.FindMatchesOffset(context.Background(), subjectID, 10, 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, matchP9, got[0].MatchID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMatchesOffset_NotConfigured(t *testing.T) {
	repo, _ := setupRepo(t, "find_matches_cursor")

	_, err := repo.FindMatchesOffset(context.Background(), subjectID, 10, 0)
	assert.Error(t, err)
}

func TestFindMatches_RejectsNonUUIDIDs(t *testing.T) {
	repo, mock := setupRepo(t, "find_matches_cursor")
	repo, err := repo.WithOffsetFunction("find_matches")
	require.NoError(t, err)

	_, err = repo.FindMatchesCursor(context.Background(), "p-own", 10, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	bad := dommatch.EncodeCursor(dommatch.NewCandidate("not-a-uuid", 0.5))
	_, err = repo.FindMatchesCursor(context.Background(), subjectID, 10, &bad)
	assert.ErrorIs(t, err, dommatch.ErrInvalidCursor)

	_, err = repo.FindMatchesOffset(context.Background(), "p-own", 10, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.NoError(t, mock.ExpectationsWereMet(), "no query may reach the database")
}

func TestNew_RejectsNonIdentifier(t *testing.T) {
	_, err := New(nil, "find_matches_cursor(); drop table profiles; --")
	assert.Error(t, err)

	repo, err := New(nil, "find_matches_cursor")
	require.NoError(t, err)
	_, err = repo.WithOffsetFunction("Find-Matches")
	assert.Error(t, err)
}
