package geo

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Locator 将地址解析为国家代码（ISO 3166-1 alpha-2）。
type Locator interface {
	Country(address string) string
}

// GeoIPLocator 基于 MaxMind GeoLite2-Country 数据库。
// 只解析字面 IP，主机名返回空字符串，不做 DNS 查询。
type GeoIPLocator struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	cache  map[string]string
}

// Open 打开 mmdb 文件。
func Open(path string) (*GeoIPLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database %s: %w", path, err)
	}
	return &GeoIPLocator{reader: reader, cache: make(map[string]string)}, nil
}

func (g *GeoIPLocator) Country(address string) string {
	ip := net.ParseIP(address)
	if ip == nil {
		return ""
	}

	g.mu.RLock()
	code, ok := g.cache[address]
	g.mu.RUnlock()
	if ok {
		return code
	}

	record, err := g.reader.Country(ip)
	if err == nil && record != nil {
		code = record.Country.IsoCode
	}

	g.mu.Lock()
	g.cache[address] = code
	g.mu.Unlock()
	return code
}

func (g *GeoIPLocator) Close() error {
	return g.reader.Close()
}

// Static is a fixed address-to-country table, handy when no database is
// available.
type Static map[string]string

func (s Static) Country(address string) string {
	return s[address]
}
