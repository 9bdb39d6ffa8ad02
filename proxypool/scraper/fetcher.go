package scraper

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"golang.org/x/net/proxy"
)

const (
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"
	DefaultFetchTimeout      = 10 * time.Second
	DefaultAcceptStatusBelow = 500

	// RandomUserAgent 作为 UserAgent 配置时，每次请求随机选择一个浏览器 UA。
	RandomUserAgent = "random"

	maxBodyBytes = 32 << 20
)

// Fetcher 抽象了"按 URL 获取原始文本"的能力。
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// FetchError is returned for a source that could not be read. It is always
// recovered by the aggregator as "zero candidates from this source".
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetcherOptions configures HTTPFetcher. Zero values fall back to defaults.
type FetcherOptions struct {
	Timeout   time.Duration
	UserAgent string
	// AcceptStatusBelow: any status below this is a success and its body is
	// parsed, so 4xx pages still yield candidates.
	AcceptStatusBelow int
	// ProxyURL routes fetches through socks5:// or http(s):// forward proxy.
	ProxyURL string
}

// HTTPFetcher 是基于 net/http 的 Fetcher 实现。
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	acceptBelow int
}

// NewHTTPFetcher 创建一个新的 HTTPFetcher 实例。
func NewHTTPFetcher(opts FetcherOptions) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.AcceptStatusBelow <= 0 {
		opts.AcceptStatusBelow = DefaultAcceptStatusBelow
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.Timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}

	if opts.ProxyURL != "" {
		if err := applyForwardProxy(transport, opts.ProxyURL); err != nil {
			return nil, err
		}
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		userAgent:   opts.UserAgent,
		acceptBelow: opts.AcceptStatusBelow,
	}, nil
}

func applyForwardProxy(transport *http.Transport, proxyURLStr string) error {
	proxyURL, err := url.Parse(proxyURLStr)
	if err != nil {
		return fmt.Errorf("invalid fetch proxy url: %w", err)
	}

	switch strings.ToLower(proxyURL.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("socks5 dialer for %s does not support contexts", proxyURL.Host)
		}
		transport.Proxy = nil
		transport.DialContext = contextDialer.DialContext
	default:
		return fmt.Errorf("unsupported fetch proxy scheme %q", proxyURL.Scheme)
	}
	return nil
}

// Fetch 获取 rawURL 的响应体。状态码低于阈值即视为成功。
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", pickUserAgent(f.userAgent))
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= f.acceptBelow {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", &FetchError{URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(body), nil
}

func pickUserAgent(ua string) string {
	if ua == RandomUserAgent {
		return uarand.GetRandom()
	}
	return ua
}
