package parser

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"liuproxy_harvest/proxypool/model"
)

const defaultPort = 443

// ErrParse marks every failure returned by Parse. A failed parse means "drop
// this candidate", never "abort the batch".
var ErrParse = errors.New("parse share link")

// vmessRecord 对应 vmess:// 后 base64 解码出的 JSON。
// port 和 aid 在不同来源中既可能是字符串也可能是数字。
type vmessRecord struct {
	Add  string     `json:"add"`
	Port flexString `json:"port"`
	ID   string     `json:"id"`
	Aid  flexString `json:"aid"`
	Scy  string     `json:"scy"`
	Net  string     `json:"net"`
	Path string     `json:"path"`
	Host string     `json:"host"`
	TLS  string     `json:"tls"`
	Ps   string     `json:"ps"`
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Parse turns a scheme-prefixed share link into a Descriptor. It never
// panics; every failure wraps ErrParse.
func Parse(uri string) (*model.Descriptor, error) {
	idx := strings.Index(uri, "://")
	if idx <= 0 {
		return nil, fmt.Errorf("%w: missing scheme", ErrParse)
	}
	scheme, ok := model.SchemeFromPrefix(uri[:idx])
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrParse, uri[:idx])
	}

	switch scheme {
	case model.SchemeVMess:
		return parseVMess(uri, uri[idx+3:])
	case model.SchemeVLESS, model.SchemeTrojan:
		return parseGeneric(scheme, uri)
	case model.SchemeShadowsocks:
		return parseShadowsocks(uri, uri[idx+3:])
	}
	return nil, fmt.Errorf("%w: unsupported scheme %q", ErrParse, scheme)
}

func parseVMess(raw, rest string) (*model.Descriptor, error) {
	body := rest
	if i := strings.IndexByte(body, '#'); i >= 0 {
		body = body[:i]
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: empty vmess payload", ErrParse)
	}

	decoded, err := DecodeBase64(body)
	if err != nil {
		return nil, fmt.Errorf("%w: vmess base64: %v", ErrParse, err)
	}
	if !utf8.Valid(decoded) {
		return nil, fmt.Errorf("%w: vmess payload is not utf-8", ErrParse)
	}

	var rec vmessRecord
	if err := json.Unmarshal(decoded, &rec); err != nil {
		return nil, fmt.Errorf("%w: vmess json: %v", ErrParse, err)
	}

	address := strings.TrimSpace(rec.Add)
	if address == "" {
		return nil, fmt.Errorf("%w: vmess record has no address", ErrParse)
	}

	port, err := parsePort(string(rec.Port))
	if err != nil {
		port = defaultPort
	}
	alterID, err := strconv.Atoi(strings.TrimSpace(string(rec.Aid)))
	if err != nil {
		alterID = 0
	}

	payload := model.VMessPayload{
		ID:       rec.ID,
		AlterID:  alterID,
		Security: withDefault(rec.Scy, "auto"),
		Network:  withDefault(rec.Net, "tcp"),
		Path:     rec.Path,
		Host:     rec.Host,
		TLS:      rec.TLS,
	}
	return model.NewDescriptor(model.SchemeVMess, address, port, rec.Ps, raw, payload), nil
}

func parseGeneric(scheme model.Scheme, raw string) (*model.Descriptor, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return descriptorFromURL(scheme, raw, u)
}

// parseShadowsocks accepts both SIP002 (ss://userinfo@host:port) and the
// legacy form where everything before the fragment is base64 of
// method:password@host:port.
func parseShadowsocks(raw, rest string) (*model.Descriptor, error) {
	u, err := url.Parse(raw)
	if err == nil && u.User != nil && u.Hostname() != "" {
		return descriptorFromURL(model.SchemeShadowsocks, raw, u)
	}

	body, fragment, _ := strings.Cut(rest, "#")
	body, _, _ = strings.Cut(body, "?")
	decoded, decErr := DecodeBase64(strings.TrimSpace(body))
	if decErr != nil || !utf8.Valid(decoded) || !strings.Contains(string(decoded), "@") {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return nil, fmt.Errorf("%w: shadowsocks link has no server", ErrParse)
	}

	legacy, err := url.Parse("ss://" + string(decoded))
	if err != nil {
		return nil, fmt.Errorf("%w: legacy shadowsocks: %v", ErrParse, err)
	}
	if unescaped, err := url.PathUnescape(fragment); err == nil {
		fragment = unescaped
	}
	legacy.Fragment = fragment
	return descriptorFromURL(model.SchemeShadowsocks, raw, legacy)
}

func descriptorFromURL(scheme model.Scheme, raw string, u *url.URL) (*model.Descriptor, error) {
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrParse)
	}

	port := defaultPort
	if portText := u.Port(); portText != "" {
		p, err := parsePort(portText)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		port = p
	}

	payload := model.URIPayload{
		Query:    u.Query(),
		Fragment: u.Fragment,
	}
	if u.User != nil {
		payload.UserInfo = u.User.String()
	}
	return model.NewDescriptor(scheme, host, port, u.Fragment, raw, payload), nil
}

func parsePort(text string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", text)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeBase64 tries the standard and URL alphabets, padded and unpadded.
// Whitespace inside the input (line-wrapped subscriptions) is ignored.
func DecodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	if clean == "" {
		return nil, errors.New("empty input")
	}

	var lastErr error
	for _, enc := range base64Encodings {
		out, err := enc.DecodeString(clean)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
