package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type site struct {
	mu   sync.Mutex
	hits map[string]int
}

func (s *site) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func page(title, body string, links ...string) string {
	html := "<html><head><title>" + title + "</title></head><body><main><p>" + body + "</p>"
	for _, l := range links {
		html += fmt.Sprintf(`<a href="%s">%s</a>`, l, l)
	}
	return html + "</main></body></html>"
}

func newSite(t *testing.T) (*site, *httptest.Server) {
	t.Helper()
	s := &site{hits: map[string]int{}}
	mux := http.NewServeMux()
	handle := func(path string, h http.HandlerFunc) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			s.hits[r.URL.Path]++
			s.mu.Unlock()
			h(w, r)
		})
	}
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		}
	}

	handle("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	handle("/{$}", html(page("Home", "Welcome to the national legal portal index page.",
		"/a", "/b", "/missing", "/private/x", "/admin/panel", "/logo.png",
		"http://other.example/x", "/a#section")))
	handle("/a", html(page("Civil code", "The civil code governs private relations between persons.", "/a/deep")))
	handle("/a/deep", html(page("Contracts", "Contracts bind the parties that freely entered into them.", "/a/deeper")))
	handle("/a/deeper", html(page("Deeper", "This page is beyond the configured crawl depth.")))
	handle("/b", func(w http.ResponseWriter, r *http.Request) {
		if s.count("/b") == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		html(page("Penal code", "The penal code defines offences and their penalties."))(w, r)
	})
	handle("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	handle("/private/x", html(page("Private", "Robots should never see this private page.")))
	handle("/admin/panel", html(page("Admin", "Administration panel that is excluded by pattern.")))
	handle("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return s, server
}

func newTestCrawler(t *testing.T, opts ...Option) *Crawler {
	t.Helper()
	opts = append([]Option{
		WithRequestDelay(0),
		WithRetry(3, time.Millisecond),
		WithTimeout(5 * time.Second),
	}, opts...)
	c, err := New(extract.New(extract.WithMinChars(20)), opts...)
	require.NoError(t, err)
	return c
}

func collect(c *Crawler, source *core.Source) []Page {
	var pages []Page
	for p := range c.Crawl(context.Background(), source) {
		pages = append(pages, p)
	}
	return pages
}

func TestCrawl_FollowsSiteWithinBounds(t *testing.T) {
	s, server := newSite(t)
	c := newTestCrawler(t)

	source := &core.Source{Name: "Ministry", URL: server.URL, ExcludePatterns: []string{"/admin"}}
	pages := collect(c, source)

	byURL := map[string]Page{}
	for _, p := range pages {
		byURL[p.URL] = p
	}
	assert.ElementsMatch(t, []string{
		server.URL + "/",
		server.URL + "/a",
		server.URL + "/b",
		server.URL + "/missing",
		server.URL + "/a/deep",
	}, mapKeys(byURL))
	assert.Equal(t, server.URL+"/", pages[0].URL, "root is yielded first")

	home := byURL[server.URL+"/"]
	require.NotNil(t, home.Document)
	assert.Equal(t, core.WebsiteSource("Ministry"), home.Document.Source)
	assert.Equal(t, "Home", home.Document.Metadata[core.MetaTitle])
	assert.Equal(t, 2, byURL[server.URL+"/a/deep"].Depth)

	missing := byURL[server.URL+"/missing"]
	require.Error(t, missing.Err)
	assert.ErrorIs(t, missing.Err, core.ErrFetch)
	var stageErr *core.StageError
	require.True(t, errors.As(missing.Err, &stageErr))
	assert.Equal(t, core.StageFetch, stageErr.Stage)

	assert.NotNil(t, byURL[server.URL+"/b"].Document, "transient failure is retried")
	assert.Equal(t, 2, s.count("/b"))
	assert.Equal(t, 1, s.count("/missing"), "client errors are not retried")
	assert.Zero(t, s.count("/private/x"), "robots.txt is honored")
	assert.Zero(t, s.count("/admin/panel"), "exclude patterns are honored")
	assert.Zero(t, s.count("/logo.png"))
	assert.Zero(t, s.count("/a/deeper"), "depth bound is honored")
	assert.Equal(t, 1, s.count("/a"), "fragments do not create new URLs")
}

func TestCrawl_MaxPagesCountsFetches(t *testing.T) {
	_, server := newSite(t)
	c := newTestCrawler(t, WithMaxPages(3))

	pages := collect(c, &core.Source{Name: "Ministry", URL: server.URL})
	assert.Len(t, pages, 3)
}

func TestCrawl_DepthZeroFetchesOnlyRoot(t *testing.T) {
	s, server := newSite(t)
	c := newTestCrawler(t, WithMaxDepth(0))

	pages := collect(c, &core.Source{Name: "Ministry", URL: server.URL})
	require.Len(t, pages, 1)
	assert.Zero(t, s.count("/a"))
}

func TestCrawl_TooShortPageStillFollowsLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><main>Hi <a href="/law">law</a></main></body></html>`)
	})
	mux.HandleFunc("/law", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("Law", "A sufficiently long body of legal text for indexing."))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	pages := collect(newTestCrawler(t), &core.Source{Name: "Court", URL: server.URL})
	require.Len(t, pages, 2)
	assert.ErrorIs(t, pages[0].Err, core.ErrContentTooShort)
	assert.NotNil(t, pages[1].Document)
}

func TestCrawl_StopsWhenConsumerStops(t *testing.T) {
	s, server := newSite(t)
	c := newTestCrawler(t, WithPageConcurrency(1))

	for range c.Crawl(context.Background(), &core.Source{Name: "Ministry", URL: server.URL}) {
		break
	}
	assert.Zero(t, s.count("/a"))
}

// pacedSite serves a root page linking to three leaves and records when
// each page request arrived.
func pacedSite(t *testing.T, robots string) (*httptest.Server, func() []time.Time) {
	t.Helper()
	var mu sync.Mutex
	var arrivals []time.Time
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, robots)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == "/" {
			fmt.Fprint(w, page("Gazette", "Official gazette of published statutes and decrees.", "/1", "/2", "/3"))
			return
		}
		fmt.Fprint(w, page("Decree "+r.URL.Path, "A decree published in the official gazette this year."))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, func() []time.Time {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Time(nil), arrivals...)
	}
}

func assertSpaced(t *testing.T, arrivals []time.Time, delay time.Duration) {
	t.Helper()
	require.Len(t, arrivals, 4)
	slices.SortFunc(arrivals, func(a, b time.Time) int { return a.Compare(b) })
	// gaps tolerate arrival jitter; the total span does not
	for i := 1; i < len(arrivals); i++ {
		assert.GreaterOrEqual(t, arrivals[i].Sub(arrivals[i-1]), delay/2, "request %d came too soon", i)
	}
	assert.GreaterOrEqual(t, arrivals[len(arrivals)-1].Sub(arrivals[0]), 3*delay-delay/4)
}

func TestCrawl_SpacesRequestsBySiteDelay(t *testing.T) {
	server, arrivals := pacedSite(t, "User-agent: *\nDisallow:\n")
	delay := 60 * time.Millisecond
	c := newTestCrawler(t, WithRequestDelay(delay))

	pages := collect(c, &core.Source{Name: "Gazette", URL: server.URL})
	assert.Len(t, pages, 4)
	assertSpaced(t, arrivals(), delay)
}

func TestCrawl_RobotsCrawlDelayRaisesSpacing(t *testing.T) {
	server, arrivals := pacedSite(t, "User-agent: *\nCrawl-delay: 0.08\n")
	c := newTestCrawler(t, WithRequestDelay(time.Millisecond))

	pages := collect(c, &core.Source{Name: "Gazette", URL: server.URL})
	assert.Len(t, pages, 4)
	assertSpaced(t, arrivals(), 80*time.Millisecond)
}

func TestCrawl_RobotsCrawlDelayNeverLowersSpacing(t *testing.T) {
	server, arrivals := pacedSite(t, "User-agent: *\nCrawl-delay: 0.001\n")
	delay := 60 * time.Millisecond
	c := newTestCrawler(t, WithRequestDelay(delay))

	collect(c, &core.Source{Name: "Gazette", URL: server.URL})
	assertSpaced(t, arrivals(), delay)
}

func TestCrawl_InvalidSource(t *testing.T) {
	c := newTestCrawler(t)
	pages := collect(c, &core.Source{Name: "Bad", URL: "ftp://example.org"})
	require.Len(t, pages, 1)
	assert.ErrorIs(t, pages[0].Err, core.ErrInvalidSource)
}

func TestCrawl_CancelledContext(t *testing.T) {
	_, server := newSite(t)
	c := newTestCrawler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var pages []Page
	for p := range c.Crawl(ctx, &core.Source{Name: "Ministry", URL: server.URL}) {
		pages = append(pages, p)
	}
	assert.Empty(t, pages)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrExtractorRequired)

	_, err = New(extract.New(), WithMaxPages(0))
	assert.Error(t, err)
	_, err = New(extract.New(), WithUserAgent(""))
	assert.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.gov/", normalizeURL("HTTPS://Example.GOV"))
	assert.Equal(t, "https://example.gov/a?x=1", normalizeURL("https://example.gov/a?x=1#frag"))
}

func TestRobotsAgent(t *testing.T) {
	assert.Equal(t, "LexRAGBot", robotsAgent(DefaultUserAgent))
	assert.Equal(t, "curl", robotsAgent("curl"))
}

func mapKeys(m map[string]Page) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
