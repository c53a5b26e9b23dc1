package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

func ptr[T any](v T) *T { return &v }

func newMockGamesStore(t *testing.T) (*GamesStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewGamesStore(mock, 16)
	require.NoError(t, err)
	return s, mock
}

func expectEmptyFamily(mock pgxmock.PgxPoolIface, table string, appID int64) {
	mock.ExpectExec("DELETE FROM " + table).WithArgs(appID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
}

func expectName(mock pgxmock.PgxPoolIface, dict, assoc, name string, appID, id int64) {
	mock.ExpectQuery("INSERT INTO " + dict + " ").WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
	mock.ExpectExec("INSERT INTO "+assoc).WithArgs(appID, id).WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestCommitGameNormalizedLayout(t *testing.T) {
	t.Parallel()
	s, mock := newMockGamesStore(t)

	game := catalog.Game{
		AppID:            10,
		Name:             "Portal",
		PriceCents:       ptr(int64(999)),
		ShortDescription: ptr("desc"),
		ReleaseDate:      &catalog.ReleaseDate{Year: 2007, Month: time.October, Day: 10},
		ReviewsTotal:     100,
		ReviewsPositive:  90,
		ReviewsNegative:  10,
		ReviewPercent:    ptr(90),
		ReviewScore:      ptr("9"),
		Estimate:         catalog.Estimate{MainHours: ptr(3.5)},
		Layout:           catalog.LayoutNormalized,
		Tags:             []string{"Puzzle"},
		Genres:           []string{"Action"},
		Developers:       []string{"Valve"},
		Publishers:       []string{"Valve"},
		Languages:        []catalog.Language{{Name: "English", FullAudio: true}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO games").
		WithArgs(
			int64(10), "Portal", int64(999), "desc", nil,
			2007, 10, 10, nil, nil,
			int64(100), int64(90), int64(10), 90, "9",
			3.5, nil, nil, nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectEmptyFamily(mock, "game_tags", 10)
	expectName(mock, "tags", "game_tags", "Puzzle", 10, 1)
	expectEmptyFamily(mock, "game_genres", 10)
	expectName(mock, "genres", "game_genres", "Action", 10, 2)
	expectEmptyFamily(mock, "game_categories", 10)
	expectEmptyFamily(mock, "game_developers", 10)
	expectName(mock, "developers", "game_developers", "Valve", 10, 3)
	expectEmptyFamily(mock, "game_publishers", 10)
	expectName(mock, "publishers", "game_publishers", "Valve", 10, 4)
	expectEmptyFamily(mock, "game_languages", 10)
	mock.ExpectQuery("INSERT INTO languages ").WithArgs("English").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec("INSERT INTO game_languages").WithArgs(int64(10), int64(5), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.CommitGame(context.Background(), game))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitGameDenormalizedLayout(t *testing.T) {
	t.Parallel()
	s, mock := newMockGamesStore(t)

	game := catalog.Game{
		AppID:       20,
		Name:        "Half-Life",
		ReleaseDate: &catalog.ReleaseDate{Year: 1998, Month: time.November, Day: 19},
		Layout:      catalog.LayoutDenormalized,
		Languages:   []catalog.Language{{Name: "English", FullAudio: true}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO games").
		WithArgs(
			int64(20), "Half-Life", nil, nil, nil,
			nil, nil, nil, time.Date(1998, time.November, 19, 0, 0, 0, 0, time.UTC), []byte(`{"English":true}`),
			int64(0), int64(0), int64(0), nil, nil,
			nil, nil, nil, nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for _, table := range []string{"game_tags", "game_genres", "game_categories", "game_developers", "game_publishers", "game_languages"} {
		expectEmptyFamily(mock, table, 20)
	}
	mock.ExpectCommit()

	require.NoError(t, s.CommitGame(context.Background(), game))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitGameCachesDictionaryIDsAfterCommit(t *testing.T) {
	t.Parallel()
	s, mock := newMockGamesStore(t)

	game := catalog.Game{AppID: 30, Name: "Game", Tags: []string{"Indie"}}

	expectCommit := func(lookup bool) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO games").WithArgs(anyArgs(19)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		expectEmptyFamily(mock, "game_tags", 30)
		if lookup {
			mock.ExpectQuery("INSERT INTO tags ").WithArgs("Indie").
				WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
		}
		mock.ExpectExec("INSERT INTO game_tags").WithArgs(int64(30), int64(7)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		for _, table := range []string{"game_genres", "game_categories", "game_developers", "game_publishers", "game_languages"} {
			expectEmptyFamily(mock, table, 30)
		}
		mock.ExpectCommit()
	}

	expectCommit(true)
	require.NoError(t, s.CommitGame(context.Background(), game))
	expectCommit(false)
	require.NoError(t, s.CommitGame(context.Background(), game))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitGameRollsBackWithoutCaching(t *testing.T) {
	t.Parallel()
	s, mock := newMockGamesStore(t)

	game := catalog.Game{AppID: 40, Name: "Game", Tags: []string{"Indie"}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO games").WithArgs(anyArgs(19)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectEmptyFamily(mock, "game_tags", 40)
	mock.ExpectQuery("INSERT INTO tags ").WithArgs("Indie").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO game_tags").WithArgs(int64(40), int64(7)).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := s.CommitGame(context.Background(), game)
	require.ErrorContains(t, err, "insert game_tags for 40")
	require.NoError(t, mock.ExpectationsWereMet())

	_, cached := s.cache.Get("tags\x00Indie")
	require.False(t, cached)
}

func TestCommitGameUpsertFailure(t *testing.T) {
	t.Parallel()
	s, mock := newMockGamesStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO games").WithArgs(anyArgs(19)...).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := s.CommitGame(context.Background(), catalog.Game{AppID: 50, Name: "x"})
	require.ErrorContains(t, err, "upsert game 50")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpoint(t *testing.T) {
	t.Parallel()
	s, mock := newMockGamesStore(t)

	mock.ExpectQuery("SELECT last_appid FROM parser_state").WillReturnError(pgx.ErrNoRows)
	last, err := s.Checkpoint(context.Background())
	require.NoError(t, err)
	require.Zero(t, last)

	mock.ExpectQuery("SELECT last_appid FROM parser_state").
		WillReturnRows(pgxmock.NewRows([]string{"last_appid"}).AddRow(int64(570)))
	last, err = s.Checkpoint(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(570), last)

	mock.ExpectQuery("SELECT last_appid FROM parser_state").WillReturnError(errors.New("down"))
	_, err = s.Checkpoint(context.Background())
	require.ErrorContains(t, err, "read checkpoint")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceCheckpoint(t *testing.T) {
	t.Parallel()
	s, mock := newMockGamesStore(t)

	mock.ExpectExec("GREATEST").WithArgs(int64(730)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.AdvanceCheckpoint(context.Background(), 730))
	require.Error(t, s.AdvanceCheckpoint(context.Background(), 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewGamesStoreRequiresPool(t *testing.T) {
	t.Parallel()
	_, err := NewGamesStore(nil, 0)
	require.Error(t, err)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
