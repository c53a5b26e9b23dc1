package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

const upsertItemSQL = `
	INSERT INTO items (appid, name, type, appdetails_json, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (appid) DO UPDATE SET
		name = EXCLUDED.name,
		type = EXCLUDED.type,
		appdetails_json = EXCLUDED.appdetails_json,
		updated_at = now();
`

// ItemStore writes out-of-scope and nonexistent identifiers to the secondary store.
type ItemStore struct {
	pool Pool
}

// NewItemStore wraps pool.
func NewItemStore(pool Pool) (*ItemStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ItemStore{pool: pool}, nil
}

// CommitItem upserts one items row in a single statement.
func (s *ItemStore) CommitItem(ctx context.Context, item catalog.OutOfScopeItem) error {
	var snapshot any
	if len(item.Snapshot) > 0 {
		snapshot = []byte(item.Snapshot)
	}
	_, err := s.pool.Exec(ctx, upsertItemSQL,
		item.AppID,
		nullable(item.Name),
		nullable(item.Kind),
		snapshot,
	)
	if err != nil {
		return fmt.Errorf("upsert item %d: %w", item.AppID, err)
	}
	return nil
}
