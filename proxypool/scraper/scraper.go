package scraper

import (
	"context"
	"regexp"
	"strings"

	"liuproxy_harvest/proxypool/model"
)

// Source 定义了一个候选链接来源。
type Source interface {
	// Raw 返回来源的原始文本。实现者只负责获取，不做提取和去重。
	Raw(ctx context.Context) (string, error)

	// Name 返回来源名称，用于日志记录。
	Name() string
}

// linkPattern finds share links embedded in free text (HTML blocks, chat
// messages) where several links may share one line.
var linkPattern = regexp.MustCompile("(?:vmess|vless|trojan|ss)://[^\\s<>\"'`]+")

// HasSchemePrefix reports whether s starts with a recognized share-link prefix.
func HasSchemePrefix(s string) bool {
	for _, scheme := range model.Schemes {
		if strings.HasPrefix(s, scheme.Prefix()) {
			return true
		}
	}
	return false
}

// ExtractCandidates scans text line by line and keeps every trimmed line that
// starts with a recognized prefix. Order is preserved; duplicates are kept.
func ExtractCandidates(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if HasSchemePrefix(trimmed) {
			out = append(out, trimmed)
		}
	}
	return out
}

func findLinks(text string) []string {
	return linkPattern.FindAllString(text, -1)
}

// containsSchemePrefix is the sniff used to accept a base64-decoded payload.
func containsSchemePrefix(text string) bool {
	for _, scheme := range model.Schemes {
		if strings.Contains(text, scheme.Prefix()) {
			return true
		}
	}
	return false
}
