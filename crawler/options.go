package crawler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Defaults
const (
	DefaultMaxPages        = 50
	DefaultMaxDepth        = 2
	DefaultTimeout         = 30 * time.Second
	DefaultRequestDelay    = time.Second
	DefaultPageConcurrency = 2
	DefaultRetryAttempts   = 3
	DefaultRetryDelay      = 500 * time.Millisecond
	DefaultMaxBodyBytes    = 10 << 20
	DefaultUserAgent       = "LexRAGBot/1.0 (+https://lexrag.local/bot)"
)

// Option configures a Crawler.
type Option func(*Crawler) error

// WithMaxPages bounds the number of URLs fetched per source.
func WithMaxPages(n int) Option {
	return func(c *Crawler) error {
		if n < 1 {
			return errors.New("max pages must be positive")
		}
		c.maxPages = n
		return nil
	}
}

// WithMaxDepth bounds the number of link hops from the root URL.
func WithMaxDepth(n int) Option {
	return func(c *Crawler) error {
		if n < 0 {
			return errors.New("max depth must not be negative")
		}
		c.maxDepth = n
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Crawler) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithRequestDelay sets the minimum spacing between requests to one site.
// Zero disables the delay.
func WithRequestDelay(d time.Duration) Option {
	return func(c *Crawler) error {
		if d < 0 {
			return errors.New("request delay must not be negative")
		}
		c.delay = d
		return nil
	}
}

// WithPageConcurrency sets how many pages of one site are fetched at once.
func WithPageConcurrency(n int) Option {
	return func(c *Crawler) error {
		if n < 1 {
			return errors.New("page concurrency must be positive")
		}
		c.concurrency = n
		return nil
	}
}

// WithRetry sets the attempts per URL and the base backoff delay.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(c *Crawler) error {
		if attempts < 1 {
			return errors.New("retry attempts must be positive")
		}
		c.retryAttempts = attempts
		c.retryDelay = baseDelay
		return nil
	}
}

// WithUserAgent sets the declared bot identifier.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) error {
		if ua == "" {
			return errors.New("user agent cannot be empty")
		}
		c.userAgent = ua
		return nil
	}
}

// WithMaxBodyBytes caps how much of each response is read.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Crawler) error {
		if n < 1 {
			return errors.New("max body bytes must be positive")
		}
		c.maxBodyBytes = n
		return nil
	}
}

// WithHTTPClient replaces the HTTP transport. The crawler installs its own
// redirect policy on a copy of the client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Crawler) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		c.client = client
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithClock sets the time source used to stamp fetched units.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) error {
		c.now = now
		return nil
	}
}
