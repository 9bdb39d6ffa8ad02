package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"liuproxy_harvest/internal/shared/logger"
)

const DefaultTelegramBaseURL = "https://t.me/s/"

// TelegramSource 实现了 Source 接口，抓取 Telegram 公开频道的网页预览。
type TelegramSource struct {
	channel   string
	baseURL   string
	userAgent string
	proxyURL  string
	timeout   time.Duration
}

// NewTelegramSource 创建一个新的 TelegramSource 实例。
// channel 可以是频道名，也可以是完整的 t.me/s/ 地址。
func NewTelegramSource(channel, userAgent string, timeout time.Duration) *TelegramSource {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &TelegramSource{
		channel:   channelName(channel),
		baseURL:   DefaultTelegramBaseURL,
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// WithBaseURL points the source at a different preview host.
func (s *TelegramSource) WithBaseURL(baseURL string) *TelegramSource {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	s.baseURL = baseURL
	return s
}

func (s *TelegramSource) Name() string {
	return "t.me/" + s.channel
}

func (s *TelegramSource) Raw(ctx context.Context) (string, error) {
	l := logger.WithComponent("Harvest/Scraper")

	c := colly.NewCollector(
		colly.UserAgent(pickUserAgent(s.userAgent)),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)
	if s.proxyURL != "" {
		if err := c.SetProxy(s.proxyURL); err != nil {
			return "", fmt.Errorf("invalid proxy for %s: %w", s.Name(), err)
		}
	}

	var (
		mu       sync.Mutex
		links    []string
		messages int
		visitErr error
	)

	c.OnHTML(".tgme_widget_message_text", func(e *colly.HTMLElement) {
		found := findLinks(blockText(e.DOM))

		mu.Lock()
		defer mu.Unlock()
		messages++
		links = append(links, found...)
	})

	c.OnError(func(r *colly.Response, err error) {
		l.Debug().Err(err).Int("status_code", r.StatusCode).Str("url", r.Request.URL.String()).Msg("Channel preview request failed.")
		mu.Lock()
		visitErr = &FetchError{URL: r.Request.URL.String(), Status: r.StatusCode, Err: err}
		mu.Unlock()
	})

	target := s.baseURL + s.channel
	if err := c.Visit(target); err != nil && visitErr == nil {
		visitErr = &FetchError{URL: target, Err: err}
	}
	c.Wait()

	if visitErr != nil {
		return "", visitErr
	}

	l.Debug().Str("source", s.Name()).Int("messages", messages).Int("links", len(links)).Msg("Channel preview scraped.")
	return strings.Join(links, "\n"), nil
}

func channelName(channel string) string {
	channel = strings.TrimSpace(channel)
	channel = strings.TrimSuffix(channel, "/")
	if i := strings.LastIndex(channel, "/"); i >= 0 {
		channel = channel[i+1:]
	}
	return strings.TrimPrefix(channel, "@")
}

// WithProxy routes the crawl through an http(s) or socks5 forward proxy.
func (s *TelegramSource) WithProxy(proxyURL string) *TelegramSource {
	s.proxyURL = proxyURL
	return s
}

// String is used in startup logs.
func (s *TelegramSource) String() string {
	return fmt.Sprintf("telegram(%s)", s.channel)
}
