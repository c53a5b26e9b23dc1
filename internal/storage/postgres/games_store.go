package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

const defaultDictCacheSize = 4096

const upsertGameSQL = `
	INSERT INTO games (
		appid, name, price_cents, short_description, header_image,
		release_year, release_month, release_day, release_date, languages,
		reviews_total, reviews_positive, reviews_negative, review_percent, review_score,
		est_main_hours, est_extra_hours, est_completionist_hours, est_reference_id, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now())
	ON CONFLICT (appid) DO UPDATE SET
		name = EXCLUDED.name,
		price_cents = EXCLUDED.price_cents,
		short_description = EXCLUDED.short_description,
		header_image = EXCLUDED.header_image,
		release_year = EXCLUDED.release_year,
		release_month = EXCLUDED.release_month,
		release_day = EXCLUDED.release_day,
		release_date = EXCLUDED.release_date,
		languages = EXCLUDED.languages,
		reviews_total = EXCLUDED.reviews_total,
		reviews_positive = EXCLUDED.reviews_positive,
		reviews_negative = EXCLUDED.reviews_negative,
		review_percent = EXCLUDED.review_percent,
		review_score = EXCLUDED.review_score,
		est_main_hours = EXCLUDED.est_main_hours,
		est_extra_hours = EXCLUDED.est_extra_hours,
		est_completionist_hours = EXCLUDED.est_completionist_hours,
		est_reference_id = EXCLUDED.est_reference_id,
		updated_at = now();
`

const selectCheckpointSQL = `SELECT last_appid FROM parser_state WHERE id = 1;`

const advanceCheckpointSQL = `
	INSERT INTO parser_state (id, last_appid, updated_at)
	VALUES (1, $1, now())
	ON CONFLICT (id) DO UPDATE
	SET last_appid = GREATEST(parser_state.last_appid, EXCLUDED.last_appid),
		updated_at = now();
`

// family describes one dictionary table and its association table.
type family struct {
	dict   string
	assoc  string
	column string
}

func (f family) lookupSQL() string {
	return fmt.Sprintf(`
	WITH ins AS (
		INSERT INTO %[1]s (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	)
	SELECT id FROM ins
	UNION ALL
	SELECT id FROM %[1]s WHERE name = $1
	LIMIT 1;`, f.dict)
}

func (f family) deleteSQL() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE appid = $1;`, f.assoc)
}

func (f family) insertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (appid, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING;`, f.assoc, f.column)
}

var (
	tagFamily       = family{dict: "tags", assoc: "game_tags", column: "tag_id"}
	genreFamily     = family{dict: "genres", assoc: "game_genres", column: "genre_id"}
	categoryFamily  = family{dict: "categories", assoc: "game_categories", column: "category_id"}
	developerFamily = family{dict: "developers", assoc: "game_developers", column: "developer_id"}
	publisherFamily = family{dict: "publishers", assoc: "game_publishers", column: "publisher_id"}
	languageFamily  = family{dict: "languages", assoc: "game_languages", column: "language_id"}
)

const insertLanguageSQL = `
	INSERT INTO game_languages (appid, language_id, full_audio)
	VALUES ($1, $2, $3)
	ON CONFLICT (appid, language_id) DO UPDATE SET full_audio = EXCLUDED.full_audio;
`

// GamesStore writes in-scope games, their associations, and the checkpoint.
type GamesStore struct {
	pool  Pool
	cache *lru.Cache[string, int64]
}

// NewGamesStore wraps pool. cacheSize bounds the dictionary id cache.
func NewGamesStore(pool Pool, cacheSize int) (*GamesStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultDictCacheSize
	}
	cache, err := lru.New[string, int64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create dictionary cache: %w", err)
	}
	return &GamesStore{pool: pool, cache: cache}, nil
}

// CommitGame upserts the game row and replaces every association family in
// one transaction.
func (s *GamesStore) CommitGame(ctx context.Context, game catalog.Game) error {
	args, err := gameArgs(game)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin game tx: %w", err)
	}
	committed := false
	defer rollback(ctx, tx, &committed)

	if _, err := tx.Exec(ctx, upsertGameSQL, args...); err != nil {
		return fmt.Errorf("upsert game %d: %w", game.AppID, err)
	}

	// Ids resolved inside the tx are cached only once it commits.
	resolved := make(map[string]int64)
	for _, assoc := range []struct {
		family family
		names  []string
	}{
		{tagFamily, game.Tags},
		{genreFamily, game.Genres},
		{categoryFamily, game.Categories},
		{developerFamily, game.Developers},
		{publisherFamily, game.Publishers},
	} {
		if err := s.replaceNames(ctx, tx, game.AppID, assoc.family, assoc.names, resolved); err != nil {
			return err
		}
	}
	if err := s.replaceLanguages(ctx, tx, game, resolved); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit game %d: %w", game.AppID, err)
	}
	committed = true
	for key, id := range resolved {
		s.cache.Add(key, id)
	}
	return nil
}

func (s *GamesStore) replaceNames(
	ctx context.Context,
	tx pgx.Tx,
	appID int64,
	f family,
	names []string,
	resolved map[string]int64,
) error {
	if _, err := tx.Exec(ctx, f.deleteSQL(), appID); err != nil {
		return fmt.Errorf("clear %s for %d: %w", f.assoc, appID, err)
	}
	for _, name := range names {
		id, err := s.dictID(ctx, tx, f, name, resolved)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, f.insertSQL(), appID, id); err != nil {
			return fmt.Errorf("insert %s for %d: %w", f.assoc, appID, err)
		}
	}
	return nil
}

func (s *GamesStore) replaceLanguages(ctx context.Context, tx pgx.Tx, game catalog.Game, resolved map[string]int64) error {
	if _, err := tx.Exec(ctx, languageFamily.deleteSQL(), game.AppID); err != nil {
		return fmt.Errorf("clear %s for %d: %w", languageFamily.assoc, game.AppID, err)
	}
	if game.Layout == catalog.LayoutDenormalized {
		return nil
	}
	for _, lang := range game.Languages {
		id, err := s.dictID(ctx, tx, languageFamily, lang.Name, resolved)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertLanguageSQL, game.AppID, id, lang.FullAudio); err != nil {
			return fmt.Errorf("insert %s for %d: %w", languageFamily.assoc, game.AppID, err)
		}
	}
	return nil
}

func (s *GamesStore) dictID(ctx context.Context, tx pgx.Tx, f family, name string, resolved map[string]int64) (int64, error) {
	key := f.dict + "\x00" + name
	if id, ok := resolved[key]; ok {
		return id, nil
	}
	if id, ok := s.cache.Get(key); ok {
		return id, nil
	}
	var id int64
	if err := tx.QueryRow(ctx, f.lookupSQL(), name).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve %s %q: %w", f.dict, name, err)
	}
	resolved[key] = id
	return id, nil
}

// Checkpoint returns the highest committed identifier, or 0 before the first commit.
func (s *GamesStore) Checkpoint(ctx context.Context) (int64, error) {
	var last int64
	err := s.pool.QueryRow(ctx, selectCheckpointSQL).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return last, nil
}

// AdvanceCheckpoint raises the checkpoint to id; it never moves backwards.
func (s *GamesStore) AdvanceCheckpoint(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("checkpoint id must be positive, got %d", id)
	}
	if _, err := s.pool.Exec(ctx, advanceCheckpointSQL, id); err != nil {
		return fmt.Errorf("advance checkpoint to %d: %w", id, err)
	}
	return nil
}

// gameArgs orders the games row parameters for upsertGameSQL.
func gameArgs(game catalog.Game) ([]any, error) {
	var year, month, day, date, languages any
	denormalized := game.Layout == catalog.LayoutDenormalized
	if game.ReleaseDate != nil {
		if denormalized {
			date = game.ReleaseDate.Time()
		} else {
			year = game.ReleaseDate.Year
			month = int(game.ReleaseDate.Month)
			day = game.ReleaseDate.Day
		}
	}
	if denormalized {
		doc, err := languagesDocument(game.Languages)
		if err != nil {
			return nil, fmt.Errorf("encode languages for %d: %w", game.AppID, err)
		}
		languages = doc
	}
	return []any{
		game.AppID,
		game.Name,
		nullable(game.PriceCents),
		nullable(game.ShortDescription),
		nullable(game.HeaderImage),
		year,
		month,
		day,
		date,
		languages,
		game.ReviewsTotal,
		game.ReviewsPositive,
		game.ReviewsNegative,
		nullable(game.ReviewPercent),
		nullable(game.ReviewScore),
		nullable(game.Estimate.MainHours),
		nullable(game.Estimate.ExtraHours),
		nullable(game.Estimate.CompletionistHours),
		nullable(game.Estimate.ReferenceID),
	}, nil
}

// languagesDocument renders {"name": full_audio} for the denormalized layout.
func languagesDocument(langs []catalog.Language) ([]byte, error) {
	doc := make(map[string]bool, len(langs))
	for _, lang := range langs {
		doc[lang.Name] = lang.FullAudio
	}
	return json.Marshal(doc)
}
