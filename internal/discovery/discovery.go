// Package discovery pages through the storefront search results and collects
// every identifier into the backlog document.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/backlog"
	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	"github.com/JakeFAU/storefront-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/storefront-ingest/internal/logging"
	"github.com/JakeFAU/storefront-ingest/internal/metrics"
	"github.com/JakeFAU/storefront-ingest/internal/retry"
)

// ResultSelector matches one search result row.
const ResultSelector = "a.search_result_row[data-ds-appid]"

// Renderer returns the rendered DOM of a search page.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (headless.Page, error)
}

// Config controls paging and persistence.
type Config struct {
	SearchURL      string
	ResultsPerPage int
	// SaveEvery persists the backlog after this many collected pages.
	SaveEvery int
	// MaxPages bounds the pages visited by one run; zero means until empty.
	MaxPages int
	// MaxSkippedPages stops the crawl after this many consecutive pages fail
	// every attempt; zero disables the limit.
	MaxSkippedPages int
	BacklogPath     string
}

// Result summarizes one crawl.
type Result struct {
	StartPage int
	Pages     int
	Skipped   int
	// Total is the size of the saved backlog.
	Total int
}

// Crawler collects identifiers page by page.
type Crawler struct {
	cfg      Config
	renderer Renderer
	blobs    catalog.BlobStore
	retry    *retry.Runner
	logger   *zap.Logger
}

// New builds a Crawler.
func New(cfg Config, renderer Renderer, blobs catalog.BlobStore, runner *retry.Runner, logger *zap.Logger) (*Crawler, error) {
	if renderer == nil || blobs == nil || runner == nil {
		return nil, fmt.Errorf("renderer, blob store, and retry runner are required")
	}
	if cfg.SearchURL == "" {
		return nil, fmt.Errorf("search url is required")
	}
	if cfg.BacklogPath == "" {
		return nil, fmt.Errorf("backlog path is required")
	}
	if cfg.ResultsPerPage <= 0 {
		cfg.ResultsPerPage = 50
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 1
	}
	return &Crawler{cfg: cfg, renderer: renderer, blobs: blobs, retry: runner, logger: logging.OrNop(logger)}, nil
}

// Run resumes at the page implied by the saved backlog and stops at the first
// empty page. The backlog is saved on every exit path, including cancellation.
func (c *Crawler) Run(ctx context.Context) (Result, error) {
	ids, err := backlog.Load(ctx, c.blobs, c.cfg.BacklogPath)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return Result{}, err
	}
	page := len(ids) / c.cfg.ResultsPerPage
	res := Result{StartPage: page}
	c.logger.Info("discovery starting", zap.Int("existing", len(ids)), zap.Int("page", page+1))

	consecutiveSkips := 0
	var runErr error
	for {
		if c.cfg.MaxPages > 0 && res.Pages >= c.cfg.MaxPages {
			c.logger.Info("page limit reached", zap.Int("max_pages", c.cfg.MaxPages))
			break
		}
		pageURL, err := c.pageURL(page)
		if err != nil {
			return res, err
		}
		rendered, err := retry.Do(ctx, c.retry, "render_page", func(ctx context.Context) (headless.Page, error) {
			return c.renderer.Render(ctx, pageURL)
		}, nil)
		if err != nil {
			if catalog.IsCancellation(ctx, err) {
				runErr = fmt.Errorf("discovery interrupted: %w", err)
				break
			}
			metrics.ObserveDiscoveryPage("skipped")
			c.logger.Warn("page skipped after retries", zap.Int("page", page+1), zap.Error(err))
			res.Pages++
			res.Skipped++
			page++
			consecutiveSkips++
			if c.cfg.MaxSkippedPages > 0 && consecutiveSkips >= c.cfg.MaxSkippedPages {
				c.logger.Warn("too many consecutive skipped pages", zap.Int("skipped", consecutiveSkips))
				break
			}
			continue
		}
		consecutiveSkips = 0

		found, err := ParseResults(rendered.HTML)
		if err != nil {
			return res, err
		}
		if len(found) == 0 {
			metrics.ObserveDiscoveryPage("empty")
			c.logger.Info("empty page, end of results", zap.Int("page", page+1))
			break
		}
		metrics.ObserveDiscoveryPage("ok")
		ids = append(ids, found...)
		res.Pages++
		c.logger.Info("page collected", zap.Int("page", page+1), zap.Int("found", len(found)))

		if (page+1)%c.cfg.SaveEvery == 0 {
			ids = backlog.Normalize(ids)
			if err := backlog.Save(ctx, c.blobs, c.cfg.BacklogPath, ids); err != nil {
				return res, err
			}
			c.logger.Debug("backlog saved", zap.Int("total", len(ids)))
		}
		page++
	}

	ids = backlog.Normalize(ids)
	res.Total = len(ids)
	if err := backlog.Save(context.WithoutCancel(ctx), c.blobs, c.cfg.BacklogPath, ids); err != nil {
		return res, errors.Join(runErr, err)
	}
	c.logger.Info("discovery finished",
		zap.Int("pages", res.Pages),
		zap.Int("skipped", res.Skipped),
		zap.Int("total", res.Total),
	)
	return res, runErr
}

func (c *Crawler) pageURL(page int) (string, error) {
	u, err := url.Parse(c.cfg.SearchURL)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	q.Set("query", "")
	q.Set("start", strconv.Itoa(page*c.cfg.ResultsPerPage))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseResults extracts identifiers from the result rows of a rendered page.
// Bundle rows list several comma-separated identifiers.
func ParseResults(html []byte) ([]int64, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	ids := []int64{}
	doc.Find(ResultSelector).Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("data-ds-appid")
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err == nil && id > 0 {
				ids = append(ids, id)
			}
		}
	})
	return ids, nil
}
