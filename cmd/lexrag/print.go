package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/lexrag"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/ingestion"
	"github.com/poiesic/lexrag/search"
)

func printReport(w io.Writer, r *core.RunReport) {
	fmt.Fprintf(w, "Run %s (%s) %s in %v\n", r.StartedAt.Local().Format(time.DateTime), r.Trigger, r.Status,
		r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  scraped: %d  too short: %d  failed: %d\n", r.Scraped, r.TooShort, r.Failed)
	fmt.Fprintf(w, "  documents added: %d  unchanged: %d\n", r.DocumentsAdded, r.DocumentsUnchanged)
	fmt.Fprintf(w, "  chunks added: %d  skipped: %d  embedding failures: %d\n", r.ChunksAdded, r.ChunksSkipped, r.EmbeddingFailures)
	if r.Fatal != "" {
		fmt.Fprintf(w, "  aborted: %s\n", r.Fatal)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  [%s] %s %s: %s\n", e.Source, e.Stage, e.Unit, e.Message)
	}
}

func printPreview(w io.Writer, docs []ingestion.PreviewDocument) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents extracted")
		return
	}
	for i, doc := range docs {
		fmt.Fprintf(w, "%d. %s\n", i+1, doc.Title)
		fmt.Fprintf(w, "   %s  [%s]\n", doc.URL, doc.Source)
		fmt.Fprintf(w, "   %d chars, %d chunks, id %s\n", doc.CharCount, doc.ChunkCount, doc.ID)
		fmt.Fprintf(w, "   %s\n", doc.Preview)
	}
}

func printResults(w io.Writer, results []*core.SearchResult) {
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, hit := range results {
		marker := ""
		if hit.KeywordMatch {
			marker = " *"
		}
		fmt.Fprintf(w, "%d: [%0.3f]%s %s\n", i+1, hit.Score, marker, hit.Entry.Source)
		if url := hit.Entry.Metadata[core.MetaURL]; url != "" {
			fmt.Fprintf(w, "   %s\n", url)
		}
		fmt.Fprintf(w, "   %s\n", snippet(hit.Entry.Text, 240))
	}
}

func printAnswer(w io.Writer, a *search.Answer) {
	fmt.Fprintln(w, a.Text)
	if len(a.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for _, s := range a.Sources {
		ref := s.Entry.Metadata[core.MetaURL]
		if ref == "" {
			ref = s.Entry.Source
		}
		fmt.Fprintf(w, "  - %s (%.2f)\n", ref, s.Score)
	}
}

func printSources(w io.Writer, sources []*core.Source) {
	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources configured")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tSELECTOR\tEXCLUDE")
	for _, s := range sources {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.URL, s.Selector, strings.Join(s.ExcludePatterns, ","))
	}
	tw.Flush()
}

func printStatus(w io.Writer, s core.SchedulerState) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "state:\t%s\n", s.Phase)
	fmt.Fprintf(tw, "running:\t%t\n", s.IsRunning)
	fmt.Fprintf(tw, "enabled:\t%t\n", s.Enabled)
	fmt.Fprintf(tw, "interval:\t%v\n", s.Interval)
	fmt.Fprintf(tw, "last run:\t%s\n", formatTime(s.LastRunAt))
	fmt.Fprintf(tw, "next run:\t%s\n", formatTime(s.NextRunAt))
	fmt.Fprintf(tw, "last status:\t%s\n", s.LastRunStatus)
	if s.LastError != "" {
		fmt.Fprintf(tw, "last error:\t%s\n", s.LastError)
	}
	tw.Flush()
}

func printHealth(w io.Writer, h lexrag.StoreHealth) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "collection:\t%s\n", h.Collection)
	fmt.Fprintf(tw, "entries:\t%d\n", h.Count)
	fmt.Fprintf(tw, "dimension:\t%d\n", h.Dimension)
	path := h.Path
	if path == "" {
		path = "(in memory)"
	}
	fmt.Fprintf(tw, "path:\t%s\n", path)
	tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
