// Package estimate resolves completion-time estimates from a community
// lookup service. Lookups never fail the caller: any error, empty result, or
// malformed payload resolves to catalog.Unavailable. Only cancellation of
// the caller's context is returned as an error.
package estimate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	collyfetcher "github.com/JakeFAU/storefront-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/storefront-ingest/internal/logging"
	"github.com/JakeFAU/storefront-ingest/internal/metrics"
)

var disallowed = regexp.MustCompile(`[^A-Za-zА-Яа-я0-9 ]+`)

// Sanitize keeps Latin and Cyrillic letters, digits, and spaces, replacing
// every other run with a space, then lower-cases and trims the result.
func Sanitize(name string) string {
	return strings.TrimSpace(strings.ToLower(disallowed.ReplaceAllString(name, " ")))
}

// Config describes the lookup endpoint.
type Config struct {
	BaseURL    string
	SearchPath string
	PageSize   int
	UserAgent  string
}

// Doer executes raw upstream requests.
type Doer interface {
	Do(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Resolver implements catalog.EstimateResolver.
type Resolver struct {
	cfg     Config
	fetcher Doer
	logger  *zap.Logger
}

// New builds a Resolver.
func New(cfg Config, fetcher Doer, logger *zap.Logger) *Resolver {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SearchPath == "" {
		cfg.SearchPath = "/api/search"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &Resolver{cfg: cfg, fetcher: fetcher, logger: logging.OrNop(logger)}
}

// Resolve looks up name and returns the first ranked match.
func (r *Resolver) Resolve(ctx context.Context, name string) (catalog.Estimate, error) {
	start := time.Now()
	est, result, err := r.lookup(ctx, name)
	elapsed := time.Since(start)
	metrics.ObserveEstimateLookup(result, elapsed)
	if err != nil {
		if catalog.IsCancellation(ctx, err) {
			return catalog.Unavailable, fmt.Errorf("estimate lookup: %w", ctx.Err())
		}
		r.logger.Info("estimate lookup failed",
			zap.String("name", name), zap.Duration("elapsed", elapsed), zap.Error(err))
		return catalog.Unavailable, nil
	}
	r.logger.Info("estimate lookup finished",
		zap.String("name", name), zap.String("result", result), zap.Duration("elapsed", elapsed))
	return est, nil
}

func (r *Resolver) lookup(ctx context.Context, name string) (catalog.Estimate, string, error) {
	query := Sanitize(name)
	if query == "" {
		return catalog.Unavailable, "miss", nil
	}
	payload, err := json.Marshal(newSearchRequest(query, r.cfg.PageSize))
	if err != nil {
		return catalog.Unavailable, "error", fmt.Errorf("marshal search request: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Origin", r.cfg.BaseURL)
	headers.Set("Referer", r.cfg.BaseURL+"/")
	if r.cfg.UserAgent != "" {
		headers.Set("User-Agent", r.cfg.UserAgent)
	}
	resp, err := r.fetcher.Do(ctx, collyfetcher.Request{
		Method:  http.MethodPost,
		URL:     r.cfg.BaseURL + r.cfg.SearchPath,
		Headers: headers,
		Body:    payload,
	})
	if err != nil {
		return catalog.Unavailable, "error", err
	}
	if ctx.Err() != nil {
		return catalog.Unavailable, "error", ctx.Err()
	}
	if !resp.OK() {
		return catalog.Unavailable, "error", fmt.Errorf("search status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return catalog.Unavailable, "error", fmt.Errorf("decode search response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return catalog.Unavailable, "miss", nil
	}
	return decoded.Data[0].estimate(), "hit", nil
}

type searchRequest struct {
	SearchType    string        `json:"searchType"`
	SearchTerms   []string      `json:"searchTerms"`
	SearchPage    int           `json:"searchPage"`
	Size          int           `json:"size"`
	SearchOptions searchOptions `json:"searchOptions"`
}

type searchOptions struct {
	Games      gameOptions `json:"games"`
	Users      userOptions `json:"users"`
	Filter     string      `json:"filter"`
	Sort       int         `json:"sort"`
	Randomizer int         `json:"randomizer"`
}

type gameOptions struct {
	UserID        int       `json:"userId"`
	Platform      string    `json:"platform"`
	SortCategory  string    `json:"sortCategory"`
	RangeCategory string    `json:"rangeCategory"`
	RangeTime     rangeTime `json:"rangeTime"`
	Gameplay      gameplay  `json:"gameplay"`
	Modifier      string    `json:"modifier"`
}

type rangeTime struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type gameplay struct {
	Perspective string `json:"perspective"`
	Flow        string `json:"flow"`
	Genre       string `json:"genre"`
}

type userOptions struct {
	SortCategory string `json:"sortCategory"`
}

func newSearchRequest(query string, size int) searchRequest {
	return searchRequest{
		SearchType:  "games",
		SearchTerms: strings.Fields(query),
		SearchPage:  1,
		Size:        size,
		SearchOptions: searchOptions{
			Games: gameOptions{SortCategory: "popular", RangeCategory: "main"},
			Users: userOptions{SortCategory: "postcount"},
		},
	}
}

type searchResponse struct {
	Data []searchResult `json:"data"`
}

type searchResult struct {
	GameID   int64   `json:"game_id"`
	GameName string  `json:"game_name"`
	CompMain float64 `json:"comp_main"`
	CompPlus float64 `json:"comp_plus"`
	Comp100  float64 `json:"comp_100"`
}

func (s searchResult) estimate() catalog.Estimate {
	est := catalog.Estimate{
		MainHours:          hours(s.CompMain),
		ExtraHours:         hours(s.CompPlus),
		CompletionistHours: hours(s.Comp100),
	}
	if s.GameID != 0 {
		id := s.GameID
		est.ReferenceID = &id
	}
	return est
}

// hours converts seconds to hours with two decimals; zero means unknown.
func hours(seconds float64) *float64 {
	if seconds <= 0 {
		return nil
	}
	h := math.Round(seconds/3600*100) / 100
	return &h
}
