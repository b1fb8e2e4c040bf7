package crawler

import "errors"

var (
	// ErrExtractorRequired is returned when no extractor is provided.
	ErrExtractorRequired = errors.New("extractor is required")

	// ErrUnsupportedContent marks responses that are neither HTML, PDF nor text.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrOffSiteRedirect marks a redirect to another host.
	ErrOffSiteRedirect = errors.New("redirect leaves the site")
)
