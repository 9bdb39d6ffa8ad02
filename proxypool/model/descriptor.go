package model

import (
	"net"
	"net/url"
	"strconv"
)

// Scheme 是分享链接的协议标签。
type Scheme string

const (
	SchemeVMess       Scheme = "vmess"
	SchemeVLESS       Scheme = "vless"
	SchemeTrojan      Scheme = "trojan"
	SchemeShadowsocks Scheme = "shadowsocks"
)

// Schemes 按固定顺序列出所有受支持的协议。
var Schemes = []Scheme{SchemeVMess, SchemeVLESS, SchemeTrojan, SchemeShadowsocks}

// Prefix 返回该协议在链接中使用的前缀，例如 "ss://"。
func (s Scheme) Prefix() string {
	if s == SchemeShadowsocks {
		return "ss://"
	}
	return string(s) + "://"
}

// SchemeFromPrefix 将 "://" 之前的子串映射为 Scheme。
func SchemeFromPrefix(prefix string) (Scheme, bool) {
	switch prefix {
	case "vmess":
		return SchemeVMess, true
	case "vless":
		return SchemeVLESS, true
	case "trojan":
		return SchemeTrojan, true
	case "ss":
		return SchemeShadowsocks, true
	default:
		return "", false
	}
}

// Payload is the scheme-specific part of a descriptor. Only the types in this
// package implement it.
type Payload interface {
	payload()
}

// VMessPayload holds the fields of a decoded vmess JSON record.
type VMessPayload struct {
	ID       string
	AlterID  int
	Security string
	Network  string
	Path     string
	Host     string
	TLS      string
}

func (VMessPayload) payload() {}

// URIPayload holds what a generic-URI scheme (vless, trojan, ss) carries
// besides host and port.
type URIPayload struct {
	UserInfo string
	Query    url.Values
	Fragment string
}

func (URIPayload) payload() {}

// Descriptor 是从一条原始链接解析出的端点描述，构造后不可变。
// 两个 Descriptor 当且仅当 Raw() 完全相同时视为同一实体。
type Descriptor struct {
	scheme  Scheme
	address string
	port    int
	label   string
	raw     string
	payload Payload
}

// NewDescriptor is used by the parser; callers are expected to have validated
// address and port already. An empty label falls back to address:port.
func NewDescriptor(scheme Scheme, address string, port int, label, raw string, payload Payload) *Descriptor {
	d := &Descriptor{
		scheme:  scheme,
		address: address,
		port:    port,
		label:   label,
		raw:     raw,
		payload: payload,
	}
	if d.label == "" {
		d.label = address + ":" + strconv.Itoa(port)
	}
	return d
}

func (d *Descriptor) Scheme() Scheme   { return d.scheme }
func (d *Descriptor) Address() string  { return d.address }
func (d *Descriptor) Port() int        { return d.port }
func (d *Descriptor) Label() string    { return d.label }
func (d *Descriptor) Raw() string      { return d.raw }
func (d *Descriptor) Payload() Payload { return d.payload }

// HostPort 返回可直接用于拨号的 "host:port"（IPv6 会加方括号）。
func (d *Descriptor) HostPort() string {
	return net.JoinHostPort(d.address, strconv.Itoa(d.port))
}
