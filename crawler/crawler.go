// Package crawler walks a configured website breadth-first and yields the
// extracted pages. It stays on the root host, honors robots.txt and spaces
// its requests with a per-site rate limiter.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/extract"
	"github.com/poiesic/lexrag/retry"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// Page is one fetched URL. Exactly one of Document and Err is set.
type Page struct {
	URL      string
	Depth    int
	Document *core.ExtractedDocument
	Err      error
}

// Crawler fetches and extracts the pages of one website at a time.
type Crawler struct {
	client        *http.Client
	extractor     *extract.Extractor
	userAgent     string
	maxPages      int
	maxDepth      int
	concurrency   int
	delay         time.Duration
	retryAttempts int
	retryDelay    time.Duration
	maxBodyBytes  int64
	timeout       time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a Crawler that extracts pages with extractor.
func New(extractor *extract.Extractor, opts ...Option) (*Crawler, error) {
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	c := &Crawler{
		client:        http.DefaultClient,
		extractor:     extractor,
		userAgent:     DefaultUserAgent,
		maxPages:      DefaultMaxPages,
		maxDepth:      DefaultMaxDepth,
		concurrency:   DefaultPageConcurrency,
		delay:         DefaultRequestDelay,
		retryAttempts: DefaultRetryAttempts,
		retryDelay:    DefaultRetryDelay,
		maxBodyBytes:  DefaultMaxBodyBytes,
		timeout:       DefaultTimeout,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "crawler")

	client := *c.client
	client.CheckRedirect = sameHostRedirects
	c.client = &client
	return c, nil
}

type target struct {
	url   string
	depth int
}

// crawl holds the state of a single Crawl call.
type crawl struct {
	*Crawler
	source  *core.Source
	root    *url.URL
	robots  *robotstxt.Group
	limiter *rate.Limiter
	visited map[string]struct{}
	queue   []target
	fetched int
}

// Crawl returns a sequence of the pages reachable from source.URL. Pages are
// yielded in breadth-first order. The crawl stops when the sequence consumer
// stops, ctx is cancelled, the frontier is empty, or MaxPages URLs have been
// fetched. Failed URLs count toward MaxPages.
func (c *Crawler) Crawl(ctx context.Context, source *core.Source) iter.Seq[Page] {
	return func(yield func(Page) bool) {
		if err := core.ValidateSource(source); err != nil {
			var origin string
			if source != nil {
				origin = source.URL
			}
			yield(Page{URL: origin, Err: core.NewStageError(core.StageFetch, origin, err)})
			return
		}
		root, err := url.Parse(normalizeURL(source.URL))
		if err != nil {
			yield(Page{URL: source.URL, Err: core.NewStageError(core.StageFetch, source.URL, err)})
			return
		}

		pool, err := ants.NewPool(c.concurrency)
		if err != nil {
			yield(Page{URL: source.URL, Err: core.NewStageError(core.StageFetch, source.URL, err)})
			return
		}
		defer pool.Release()

		cr := &crawl{
			Crawler: c,
			source:  source,
			root:    root,
			limiter: newLimiter(c.delay),
			visited: map[string]struct{}{root.String(): {}},
			queue:   []target{{url: root.String()}},
		}
		cr.loadRobots(ctx)

		logger := c.logger.With("source", source.Name)
		logger.Info("crawl started", "url", root.String())
		defer func() { logger.Info("crawl finished", "fetched", cr.fetched) }()

		for len(cr.queue) > 0 && cr.fetched < c.maxPages {
			if ctx.Err() != nil {
				return
			}
			batch := cr.nextBatch()
			if len(batch) == 0 {
				continue
			}
			results := cr.fetchBatch(ctx, pool, batch)
			for _, r := range results {
				if r.skip {
					continue
				}
				if !yield(r.page) {
					return
				}
			}
		}
	}
}

// nextBatch dequeues up to concurrency allowed URLs without exceeding MaxPages.
func (cr *crawl) nextBatch() []target {
	var batch []target
	for len(cr.queue) > 0 && len(batch) < cr.concurrency && cr.fetched+len(batch) < cr.maxPages {
		t := cr.queue[0]
		cr.queue = cr.queue[1:]
		if !cr.allowed(t.url) {
			cr.logger.Debug("disallowed by robots.txt", "url", t.url)
			continue
		}
		batch = append(batch, t)
	}
	cr.fetched += len(batch)
	return batch
}

type result struct {
	page  Page
	links []string
	skip  bool
}

func (cr *crawl) fetchBatch(ctx context.Context, pool *ants.Pool, batch []target) []result {
	results := make([]result, len(batch))
	var wg sync.WaitGroup
	for i, t := range batch {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = cr.visit(ctx, t)
		}
		if err := pool.Submit(task); err != nil {
			// pool closed or overloaded, run inline
			task()
		}
	}
	wg.Wait()

	for _, r := range results {
		if r.page.Depth >= cr.maxDepth {
			continue
		}
		for _, link := range r.links {
			cr.enqueue(link, r.page.Depth+1)
		}
	}
	return results
}

func (cr *crawl) visit(ctx context.Context, t target) result {
	page := Page{URL: t.url, Depth: t.depth}

	unit, err := cr.fetch(ctx, t.url)
	if errors.Is(err, ErrUnsupportedContent) {
		cr.logger.Debug("skipping unsupported content", "url", t.url, "error", err)
		return result{page: page, skip: true}
	}
	if err != nil {
		cr.logger.Warn("fetch failed", "url", t.url, "error", err)
		page.Err = core.NewStageError(core.StageFetch, t.url, fmt.Errorf("%w: %w", core.ErrFetch, err))
		return result{page: page}
	}
	unit.SourceName = cr.source.Name

	doc, links, err := cr.extractor.Page(unit, cr.source.Selector)
	switch {
	case errors.Is(err, core.ErrContentTooShort):
		cr.logger.Debug("page too short", "url", t.url, "error", err)
		page.Err = err
	case err != nil:
		cr.logger.Warn("extraction failed", "url", t.url, "error", err)
		page.Err = core.NewStageError(core.StageExtract, t.url, err)
	default:
		page.Document = doc
	}
	return result{page: page, links: links}
}

// fetch GETs rawURL, retrying throttling and server errors with backoff.
func (cr *crawl) fetch(ctx context.Context, rawURL string) (*core.RawUnit, error) {
	var unit *core.RawUnit
	err := retry.WithBackoff(ctx, func() error {
		if err := cr.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		u, err := cr.get(ctx, rawURL)
		if err != nil {
			return err
		}
		unit = u
		return nil
	}, cr.retryAttempts, cr.retryDelay)
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func (cr *crawl) get(ctx context.Context, rawURL string) (*core.RawUnit, error) {
	reqCtx, cancel := context.WithTimeout(ctx, cr.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", cr.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,text/plain;q=0.8")

	resp, err := cr.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrOffSiteRedirect) {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if !supportedContentType(contentType) {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, cr.maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &core.RawUnit{
		Origin:      resp.Request.URL.String(),
		ContentType: contentType,
		Body:        body,
		FetchedAt:   cr.now(),
	}, nil
}

func (cr *crawl) enqueue(link string, depth int) {
	u, err := url.Parse(normalizeURL(link))
	if err != nil || u.Host != cr.root.Host || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	key := u.String()
	if _, seen := cr.visited[key]; seen {
		return
	}
	cr.visited[key] = struct{}{}
	if cr.excluded(key) || skippedExtension(u.Path) {
		return
	}
	cr.queue = append(cr.queue, target{url: key, depth: depth})
}

func (cr *crawl) excluded(rawURL string) bool {
	for _, pattern := range cr.source.ExcludePatterns {
		if pattern != "" && strings.Contains(rawURL, pattern) {
			return true
		}
	}
	return false
}

// loadRobots fetches robots.txt once for the crawl. Any failure to read it
// allows everything.
func (cr *crawl) loadRobots(ctx context.Context) {
	robotsURL := cr.root.Scheme + "://" + cr.root.Host + "/robots.txt"
	reqCtx, cancel := context.WithTimeout(ctx, cr.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", cr.userAgent)
	resp, err := cr.client.Do(req)
	if err != nil {
		cr.logger.Debug("robots.txt unavailable", "url", robotsURL, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		cr.logger.Debug("robots.txt unparsable", "url", robotsURL, "error", err)
		return
	}
	cr.robots = data.FindGroup(robotsAgent(cr.userAgent))
	if cr.robots != nil && cr.robots.CrawlDelay > cr.delay {
		cr.limiter.SetLimit(rate.Every(cr.robots.CrawlDelay))
	}
}

func (cr *crawl) allowed(rawURL string) bool {
	if cr.robots == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return cr.robots.Test(u.RequestURI())
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// robotsAgent returns the product token of a User-Agent string.
func robotsAgent(ua string) string {
	token, _, _ := strings.Cut(ua, "/")
	token, _, _ = strings.Cut(token, " ")
	return token
}

func sameHostRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	if len(via) > 0 && !strings.EqualFold(req.URL.Host, via[0].URL.Host) {
		return fmt.Errorf("%w: %s", ErrOffSiteRedirect, req.URL.Host)
	}
	return nil
}

// normalizeURL drops the fragment, lowercases scheme and host, and gives an
// empty path the root path. Unparsable input is returned unchanged.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

func supportedContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	mediaType = strings.TrimSpace(mediaType)
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/xhtml+xml", mediaType == "application/pdf":
		return true
	}
	return false
}

var skippedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true,
	".webp": true, ".ico": true, ".css": true, ".js": true, ".zip": true,
	".gz": true, ".tar": true, ".mp3": true, ".mp4": true, ".avi": true,
	".mov": true, ".woff": true, ".woff2": true, ".ttf": true, ".exe": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true,
}

func skippedExtension(p string) bool {
	return skippedExtensions[strings.ToLower(path.Ext(p))]
}
