package scraper

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"liuproxy_harvest/proxypool/model"
)

var numberedLine = regexp.MustCompile(`^\d+\.\s+`)

// LocalSource replays a list previously written by the file persister.
type LocalSource struct {
	path string
}

// NewLocalSource 创建一个读取本地文件的 Source。
func NewLocalSource(path string) Source {
	return &LocalSource{path: path}
}

func (s *LocalSource) Name() string {
	return "local:" + s.path
}

func (s *LocalSource) Raw(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read local list %s: %w", s.path, err)
	}
	return strings.Join(CleanPersistedLines(string(data)), "\n"), nil
}

// CleanPersistedLines strips the decoration that snapshot and append writes
// add around each link: comment headers, separators, "N. " numbering and
// "label: " prefixes. Lines without a share link are dropped.
func CleanPersistedLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "=") {
			continue
		}
		line = numberedLine.ReplaceAllString(line, "")

		start := -1
		for _, scheme := range model.Schemes {
			if i := strings.Index(line, scheme.Prefix()); i >= 0 && (start < 0 || i < start) {
				start = i
			}
		}
		if start < 0 {
			continue
		}
		out = append(out, line[start:])
	}
	return out
}
