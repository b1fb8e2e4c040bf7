package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/poiesic/lexrag/core"
	"golang.org/x/net/html"
)

// noiseElements never contain main content.
const noiseElements = "script, style, noscript, template, svg, nav, header, footer, aside, " +
	"form, iframe, object, embed, button, input, select, [role=navigation], [aria-hidden=true]"

// noiseClasses mark navigation chrome by class name.
var noiseClasses = []string{
	"nav", "navbar", "navigation", "sidebar", "menu", "toc",
	"table-of-contents", "footer", "header", "ad", "advertisement",
	"social", "share", "comments", "related", "breadcrumb", "cookie-banner",
}

// mainRegions are tried in order when no selector matches.
var mainRegions = []string{"main", "article", "[role=main]", "body"}

// HTMLPage is the readable content of an HTML document.
type HTMLPage struct {
	Title string
	Text  string
	Links []string
}

// ParseHTML extracts the title, main-region text and absolute links of body.
// Relative links are resolved against baseURL when it is absolute.
func ParseHTML(body []byte, baseURL, selector string) (*HTMLPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing html: %w", core.ErrExtraction, err)
	}

	page := &HTMLPage{
		Title: CollapseWhitespace(doc.Find("title").First().Text()),
		Links: collectLinks(doc, baseURL),
	}

	doc.Find(noiseElements).Remove()
	classSel := make([]string, len(noiseClasses))
	for i, c := range noiseClasses {
		classSel[i] = "." + c
	}
	doc.Find(strings.Join(classSel, ", ")).Remove()

	if page.Title == "" {
		page.Title = CollapseWhitespace(doc.Find("h1").First().Text())
	}

	region := mainRegion(doc, selector)
	page.Text = nodeText(region.Nodes)
	return page, nil
}

// mainRegion returns the selector's first match, or the first present main region.
func mainRegion(doc *goquery.Document, selector string) *goquery.Selection {
	if selector != "" {
		if sel := doc.Find(selector); sel.Length() > 0 {
			return sel.First()
		}
	}
	for _, s := range mainRegions {
		if sel := doc.Find(s); sel.Length() > 0 {
			return sel.First()
		}
	}
	return doc.Selection
}

// nodeText joins every text node below nodes with single spaces.
func nodeText(nodes []*html.Node) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return CollapseWhitespace(strings.Join(parts, " "))
}

// collectLinks returns the distinct absolute http(s) links of the document in
// order of appearance, without fragments.
func collectLinks(doc *goquery.Document, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		base = nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		abs := u.String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links
}
