package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// textBlockSelector covers the places share links usually sit on HTML pages.
const textBlockSelector = "pre, code, textarea, .tgme_widget_message_text"

// PageSource 实现了 Source 接口，用于从 HTML 页面中提取分享链接。
type PageSource struct {
	name    string
	url     string
	fetcher Fetcher
}

// NewPageSource 创建一个新的 PageSource 实例。
func NewPageSource(name, url string, fetcher Fetcher) Source {
	if name == "" {
		name = url
	}
	return &PageSource{name: name, url: url, fetcher: fetcher}
}

func (s *PageSource) Name() string {
	return s.name
}

// Raw fetches the page and flattens every link it finds into one candidate
// per line, so the aggregator's line extractor can consume it.
func (s *PageSource) Raw(ctx context.Context) (string, error) {
	body, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML for %s: %w", s.name, err)
	}

	return strings.Join(linksFromDocument(doc.Selection), "\n"), nil
}

func linksFromDocument(root *goquery.Selection) []string {
	var links []string

	root.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if HasSchemePrefix(href) {
			links = append(links, href)
		}
	})

	root.Find(textBlockSelector).Each(func(_ int, sel *goquery.Selection) {
		links = append(links, findLinks(blockText(sel))...)
	})

	return links
}

// blockText is Selection.Text with <br> rendered as a line break, so links
// separated only by <br> are not glued together.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if n.DataAtom == atom.Br {
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
		b.WriteByte('\n')
	}
	return b.String()
}
