package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"liuproxy_harvest/internal/shared/logger"
	"liuproxy_harvest/proxypool/results"
	"liuproxy_harvest/proxypool/scraper"
)

const fileSuffix = "_configs.txt"

var _ results.Persister = (*FileStorage)(nil)

// FileStorage 实现了 results.Persister 接口，每个集合对应一个纯文本文件。
type FileStorage struct {
	dir    string
	prefix string
	now    func() time.Time
	mu     sync.RWMutex
}

// NewFileStorage 创建一个新的 FileStorage 实例。prefix 会加在每个文件名前，
// 例如回放模式使用 "local_"。
func NewFileStorage(dir, prefix string) *FileStorage {
	return &FileStorage{
		dir:    dir,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the file backing collection.
func (fs *FileStorage) Path(collection string) string {
	return filepath.Join(fs.dir, fs.prefix+collection+fileSuffix)
}

// Init truncates the collection file and writes a start-of-run header.
func (fs *FileStorage) Init(collection, title string, notes ...string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", title)
	fmt.Fprintf(&sb, "# Started: %s\n", fs.now().Format(time.RFC1123))
	for _, note := range notes {
		fmt.Fprintf(&sb, "# %s\n", note)
	}
	sb.WriteString("\n")

	return fs.writeFile(collection, sb.String())
}

// Write 用一个带标题的快照替换整个集合。
func (fs *FileStorage) Write(collection string, items []string, title string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.now()
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", title)
	fmt.Fprintf(&sb, "# Generated on: %s\n", now.Format(time.RFC1123))
	fmt.Fprintf(&sb, "# Total configs: %d\n\n", len(items))

	if len(items) == 0 {
		sb.WriteString("# No configurations found\n")
	}
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, item)
	}
	fmt.Fprintf(&sb, "\n# End of file - %s\n", now.Format(time.RFC3339))

	if err := fs.writeFile(collection, sb.String()); err != nil {
		return err
	}

	logger.WithComponent("Harvest/Storage").Info().Str("path", fs.Path(collection)).Int("count", len(items)).Msg("Snapshot written.")
	return nil
}

// Append 向集合文件追加一行 "label: item"。
func (fs *FileStorage) Append(collection, item, label string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(fs.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.OpenFile(fs.Path(collection), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", collection, err)
	}
	defer f.Close()

	line := item
	if label != "" {
		line = label + ": " + item
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", collection, err)
	}
	return nil
}

// Load 读取集合文件中的链接，去掉编号、标签和注释。文件不存在时返回空列表。
func (fs *FileStorage) Load(collection string) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l := logger.WithComponent("Harvest/Storage")

	file, err := os.Open(fs.Path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			l.Info().Str("path", fs.Path(collection)).Msg("Collection file not found, returning an empty list.")
			return []string{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	items := scraper.CleanPersistedLines(sb.String())
	l.Debug().Int("count", len(items)).Str("collection", collection).Msg("Loaded collection.")
	return items, nil
}

func (fs *FileStorage) writeFile(collection, content string) error {
	if err := os.MkdirAll(fs.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(fs.Path(collection), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", collection, err)
	}
	return nil
}
