// Package backlog reads and writes the identifier backlog document: a JSON
// array of positive integers kept sorted and free of duplicates.
package backlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

const contentType = "application/json"

// Load decodes the document at path and normalizes it. A missing document
// yields an error wrapping catalog.ErrNotFound.
func Load(ctx context.Context, blobs catalog.BlobStore, path string) ([]int64, error) {
	data, err := blobs.GetObject(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load backlog: %w", err)
	}
	ids, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load backlog %s: %w", path, err)
	}
	return ids, nil
}

// Decode parses a JSON array of identifiers and normalizes it.
func Decode(data []byte) ([]int64, error) {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode identifiers: %w", err)
	}
	return Normalize(ids), nil
}

// Normalize returns the positive identifiers of ids, sorted ascending without
// duplicates. The input is not modified.
func Normalize(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// After returns the suffix of the normalized ids strictly greater than checkpoint.
func After(ids []int64, checkpoint int64) []int64 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] > checkpoint })
	return ids[i:]
}

// Encode renders ids as an indented, normalized JSON array.
func Encode(ids []int64) ([]byte, error) {
	data, err := json.MarshalIndent(Normalize(ids), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode identifiers: %w", err)
	}
	return append(data, '\n'), nil
}

// Save overwrites the document at path with the normalized ids.
func Save(ctx context.Context, blobs catalog.BlobStore, path string, ids []int64) error {
	data, err := Encode(ids)
	if err != nil {
		return err
	}
	if _, err := blobs.PutObject(ctx, path, contentType, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
