// Package labels extracts user-applied tags from storefront item pages.
package labels

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	collyfetcher "github.com/JakeFAU/storefront-ingest/internal/fetcher/colly"
)

// tagSelector matches the tag anchors rendered on an item page.
const tagSelector = "a.app_tag"

// ageGateCookies pre-answer the storefront's age verification prompt.
const ageGateCookies = "birthtime=568022401; lastagecheckage=1-0-1990"

// Config describes the item page endpoint.
type Config struct {
	BaseURL string
	// PageLanguage is the storefront language parameter, e.g. "russian".
	PageLanguage string
	Headers      http.Header
}

// Doer executes raw upstream requests.
type Doer interface {
	Do(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Extractor implements catalog.LabelFetcher.
type Extractor struct {
	cfg     Config
	fetcher Doer
}

// New builds an Extractor.
func New(cfg Config, fetcher Doer) *Extractor {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PageLanguage == "" {
		cfg.PageLanguage = "russian"
	}
	return &Extractor{cfg: cfg, fetcher: fetcher}
}

// FetchLabels returns the tags of id in page order. A non-2xx page yields an
// empty list; transport failures are returned as transient errors.
func (e *Extractor) FetchLabels(ctx context.Context, id int64) ([]string, error) {
	headers := e.cfg.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("Cookie", ageGateCookies)

	rawURL := e.cfg.BaseURL + "/app/" + strconv.FormatInt(id, 10) + "?l=" + e.cfg.PageLanguage
	resp, err := e.fetcher.Do(ctx, collyfetcher.Request{Method: http.MethodGet, URL: rawURL, Headers: headers})
	if err != nil {
		return nil, &catalog.TransientError{Op: "labels", Err: err}
	}
	if !resp.OK() {
		return []string{}, nil
	}
	return Parse(resp.Body)
}

// Parse extracts trimmed, non-empty tag texts from an item page.
func Parse(page []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse item page: %w", err)
	}
	tags := []string{}
	doc.Find(tagSelector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			tags = append(tags, text)
		}
	})
	return tags, nil
}
