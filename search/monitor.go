package search

import (
	"log/slog"

	"github.com/poiesic/lexrag/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, topK int, threshold float32)
	AfterEmbedding(dimension int)
	AfterVectorSearch(results []*core.SearchResult)
	KeywordHit(result *core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int, _ float32)        {}
func (n *noopMonitor) AfterEmbedding(_ int)                    {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.SearchResult) {}
func (n *noopMonitor) KeywordHit(_ *core.SearchResult)          {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)            {}

// LogMonitor reports every search stage at debug level.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ SearchMonitor = (*LogMonitor)(nil)

func (m *LogMonitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *LogMonitor) Start(query string, topK int, threshold float32) {
	m.logger().Debug("search started", "query", query, "top_k", topK, "threshold", threshold)
}

func (m *LogMonitor) AfterEmbedding(dimension int) {
	m.logger().Debug("query embedded", "dimension", dimension)
}

func (m *LogMonitor) AfterVectorSearch(results []*core.SearchResult) {
	m.logger().Debug("vector search done", "hits", len(results))
}

func (m *LogMonitor) KeywordHit(result *core.SearchResult) {
	m.logger().Debug("keyword match", "id", result.Entry.ID, "score", result.Score)
}

func (m *LogMonitor) Finish(results []*core.SearchResult) {
	for i, r := range results {
		m.logger().Debug("result", "rank", i+1, "id", r.Entry.ID, "source", r.Entry.Source, "score", r.Score)
	}
}
