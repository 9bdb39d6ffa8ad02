package scraper

import (
	"context"
)

// TextSource 读取一个纯文本订阅地址（逐行链接或整体 base64）。
type TextSource struct {
	name    string
	url     string
	fetcher Fetcher
}

// NewTextSource 创建一个新的 TextSource 实例。name 为空时使用 URL。
func NewTextSource(name, url string, fetcher Fetcher) Source {
	if name == "" {
		name = url
	}
	return &TextSource{name: name, url: url, fetcher: fetcher}
}

func (s *TextSource) Name() string {
	return s.name
}

func (s *TextSource) Raw(ctx context.Context) (string, error) {
	return s.fetcher.Fetch(ctx, s.url)
}
