package lexrag

import (
	"log/slog"
	"net/http"

	"github.com/poiesic/lexrag/ai"
	"github.com/poiesic/lexrag/scheduler"
)

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	provider   ai.AIProvider
	logger     *slog.Logger
	httpClient *http.Client
	clock      scheduler.Clock
	inMemory   bool
}

// WithProvider replaces the OpenAI-compatible provider built from the
// configuration. The service takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithHTTPClient sets the client used by the web fetcher.
func WithHTTPClient(client *http.Client) Option {
	return func(o *serviceOptions) {
		o.httpClient = client
	}
}

// WithSchedulerClock sets the clock driving periodic runs. Run reports are
// stamped from the same clock.
func WithSchedulerClock(clock scheduler.Clock) Option {
	return func(o *serviceOptions) {
		o.clock = clock
	}
}

// WithInMemoryStorage keeps the index in memory instead of cfg.DataDir.
func WithInMemoryStorage() Option {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}
