// Package storeapi adapts the storefront's JSON endpoints to catalog records.
package storeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	collyfetcher "github.com/JakeFAU/storefront-ingest/internal/fetcher/colly"
)

// Score fields accepted by Config.ScoreField.
const (
	ScoreNumeric     = "review_score"
	ScoreDescriptive = "review_score_desc"
)

// Config describes the storefront endpoints.
type Config struct {
	BaseURL        string
	Country        string
	UserAgent      string
	AcceptLanguage string
	ScoreField     string
}

// Doer executes raw upstream requests.
type Doer interface {
	Do(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Client implements catalog.RecordFetcher.
type Client struct {
	cfg     Config
	fetcher Doer
}

// New builds a Client.
func New(cfg Config, fetcher Doer) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Country == "" {
		cfg.Country = "US"
	}
	if cfg.ScoreField == "" {
		cfg.ScoreField = ScoreNumeric
	}
	return &Client{cfg: cfg, fetcher: fetcher}
}

// Headers returns the request identity shared by every storefront call.
func (c *Client) Headers() http.Header {
	h := http.Header{}
	if c.cfg.UserAgent != "" {
		h.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.AcceptLanguage != "" {
		h.Set("Accept-Language", c.cfg.AcceptLanguage)
	}
	return h
}

// FetchRecord loads the catalog record of id in the given locale.
func (c *Client) FetchRecord(ctx context.Context, id int64, locale string) (catalog.Record, error) {
	q := url.Values{}
	q.Set("appids", strconv.FormatInt(id, 10))
	q.Set("cc", c.cfg.Country)
	q.Set("l", locale)
	body, err := c.get(ctx, "appdetails", c.cfg.BaseURL+"/api/appdetails?"+q.Encode())
	if err != nil {
		return catalog.Record{}, err
	}
	record, err := decodeRecord(id, locale, body)
	if err != nil {
		return catalog.Record{}, &catalog.TransientError{Op: "appdetails", Err: err}
	}
	return record, nil
}

// FetchReviews loads the aggregate review summary of id.
func (c *Client) FetchReviews(ctx context.Context, id int64) (catalog.ReviewsSummary, error) {
	q := url.Values{}
	q.Set("json", "1")
	q.Set("language", "all")
	q.Set("purchase_type", "all")
	q.Set("filter", "all")
	body, err := c.get(ctx, "appreviews", fmt.Sprintf("%s/appreviews/%d?%s", c.cfg.BaseURL, id, q.Encode()))
	if err != nil {
		return catalog.ReviewsSummary{}, err
	}
	summary, err := decodeReviews(body, c.cfg.ScoreField)
	if err != nil {
		return catalog.ReviewsSummary{}, &catalog.TransientError{Op: "appreviews", Err: err}
	}
	return summary, nil
}

func (c *Client) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	resp, err := c.fetcher.Do(ctx, collyfetcher.Request{
		Method:  http.MethodGet,
		URL:     rawURL,
		Headers: c.Headers(),
	})
	if err != nil {
		return nil, &catalog.TransientError{Op: op, Err: err}
	}
	if !resp.OK() {
		return nil, &catalog.TransientError{Op: op, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
