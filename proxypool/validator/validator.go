package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"liuproxy_harvest/internal/shared/logger"
	"liuproxy_harvest/proxypool/model"
)

const (
	DefaultTCPTimeout  = 3000 * time.Millisecond
	DefaultHTTPTimeout = 2000 * time.Millisecond
)

var errInvalidEndpoint = errors.New("invalid endpoint")

// Doer 是 HTTP 探测阶段使用的最小客户端接口。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Classifier. Zero values fall back to defaults.
type Options struct {
	TCPTimeout  time.Duration
	HTTPTimeout time.Duration
	Dialer      proxy.ContextDialer
	// HTTP overrides the client used by the HTTP stage. When nil a client
	// that dials through Dialer and never follows redirects is built.
	HTTP Doer
}

// Classifier 对单个描述符执行两阶段连通性探测（TCP，然后 HTTP HEAD）。
type Classifier struct {
	tcpTimeout  time.Duration
	httpTimeout time.Duration
	dialer      proxy.ContextDialer
	http        Doer
}

func NewClassifier(opts Options) *Classifier {
	if opts.TCPTimeout <= 0 {
		opts.TCPTimeout = DefaultTCPTimeout
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = DefaultHTTPTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = proxy.Direct
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{
			Transport: &http.Transport{
				Proxy:             nil,
				DialContext:       opts.Dialer.DialContext,
				DisableKeepAlives: true,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Classifier{
		tcpTimeout:  opts.TCPTimeout,
		httpTimeout: opts.HTTPTimeout,
		dialer:      opts.Dialer,
		http:        opts.HTTP,
	}
}

// Classify probes d and returns exactly one outcome. It never panics.
func (c *Classifier) Classify(ctx context.Context, d *model.Descriptor) (out model.Outcome) {
	l := logger.WithComponent("Harvest/Classifier")
	out = model.Outcome{Descriptor: d, State: model.StateFailed}

	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("Recovered from panic while probing.")
			out = model.Outcome{Descriptor: d, State: model.StateFailed, Err: fmt.Errorf("probe panicked: %v", r)}
		}
	}()

	if d == nil {
		out.Err = fmt.Errorf("%w: nil descriptor", errInvalidEndpoint)
		return out
	}
	if err := validateEndpoint(d.Address(), d.Port()); err != nil {
		out.Err = err
		l.Debug().Err(err).Str("raw", d.Raw()).Msg("Endpoint rejected before probing.")
		return out
	}

	hostPort := d.HostPort()

	// 探测只受各阶段超时约束，调用方取消时正在进行的探测照常完成。
	ctx = context.WithoutCancel(ctx)

	tcpErr := c.probeTCP(ctx, hostPort)
	if tcpErr == nil {
		out.State = model.StateWorking
		out.Stage = model.StageTCP
		return out
	}

	req, err := c.headRequest(hostPort)
	if err != nil {
		out.Err = err
		return out
	}

	httpErr := c.probeHTTP(ctx, req)
	out.Stage = model.StageHTTP
	if httpErr == nil {
		out.State = model.StateWorking
		return out
	}

	out.State = model.StatePotential
	out.Err = httpErr
	l.Debug().
		Str("endpoint", hostPort).
		Bool("tcp_timeout", isTimeout(tcpErr)).
		Bool("http_timeout", isTimeout(httpErr)).
		Msg("Both probes failed, marking as potential.")
	return out
}

func (c *Classifier) probeTCP(ctx context.Context, hostPort string) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.tcpTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, "tcp", hostPort)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

func (c *Classifier) headRequest(hostPort string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodHead, "http://"+hostPort+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build probe request: %w", err)
	}
	return req, nil
}

// probeHTTP treats any response, whatever its status, as reachability.
func (c *Classifier) probeHTTP(ctx context.Context, req *http.Request) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.httpTimeout)
	defer cancel()

	resp, err := c.http.Do(req.WithContext(reqCtx))
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	return nil
}

func validateEndpoint(host string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", errInvalidEndpoint, port)
	}
	if host == "" {
		return fmt.Errorf("%w: empty host", errInvalidEndpoint)
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if !isHostname(host) {
		return fmt.Errorf("%w: malformed host %q", errInvalidEndpoint, host)
	}
	return nil
}

func isHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			ch := label[i]
			switch {
			case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			case ch == '-' || ch == '_':
			default:
				return false
			}
		}
	}
	return true
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
