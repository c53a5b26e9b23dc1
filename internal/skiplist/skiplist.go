// Package skiplist tracks identifiers whose upstream calls exhausted their
// retries. The list is append-only and persisted after every addition.
package skiplist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/storefront-ingest/internal/backlog"
	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

// List is a durable set of skipped identifiers. It is safe for concurrent use.
type List struct {
	mu    sync.Mutex
	blobs catalog.BlobStore
	path  string
	ids   map[int64]struct{}
}

// Load reads the list at path; a missing document starts an empty list.
func Load(ctx context.Context, blobs catalog.BlobStore, path string) (*List, error) {
	l := &List{blobs: blobs, path: path, ids: make(map[int64]struct{})}
	ids, err := backlog.Load(ctx, blobs, path)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return l, nil
		}
		return nil, fmt.Errorf("load skip-list: %w", err)
	}
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
	return l, nil
}

// Add records id and rewrites the document. Adding a present id is a no-op;
// a failed write leaves the list unchanged so a later Add retries it.
func (l *List) Add(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[id]; ok {
		return nil
	}
	l.ids[id] = struct{}{}
	if err := backlog.Save(ctx, l.blobs, l.path, l.sortedLocked()); err != nil {
		delete(l.ids, id)
		return fmt.Errorf("persist skip-list: %w", err)
	}
	return nil
}

// Contains reports whether id is listed.
func (l *List) Contains(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// IDs returns the listed identifiers in ascending order.
func (l *List) IDs() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked()
}

// Len is the number of listed identifiers.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

func (l *List) sortedLocked() []int64 {
	out := make([]int64, 0, len(l.ids))
	for id := range l.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
