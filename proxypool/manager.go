package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"liuproxy_harvest/internal/shared/config"
	"liuproxy_harvest/internal/shared/logger"
	"liuproxy_harvest/internal/shared/types"
	"liuproxy_harvest/proxypool/model"
	"liuproxy_harvest/proxypool/results"
	"liuproxy_harvest/proxypool/scheduler"
	"liuproxy_harvest/proxypool/scraper"
	"liuproxy_harvest/proxypool/storage"
)

const (
	titleAll       = "All Found V2ray Configurations (Not Tested)"
	titleWorking   = "V2ray Working Configurations"
	titlePotential = "V2ray Potential Configurations"

	replayPrefix = "local_"
)

// Reporter 接收运行生命周期事件，例如 web.Feed。
type Reporter interface {
	results.Observer
	RunStarted(runID string, mode types.RunMode, total int)
	Progress(done, total int)
	RunFinished(s results.Summary)
}

// Reporters fans every event out to each member in order.
type Reporters []Reporter

func (rs Reporters) RunStarted(runID string, mode types.RunMode, total int) {
	for _, r := range rs {
		r.RunStarted(runID, mode, total)
	}
}

func (rs Reporters) Progress(done, total int) {
	for _, r := range rs {
		r.Progress(done, total)
	}
}

func (rs Reporters) OnOutcome(o model.Outcome, s results.Summary) {
	for _, r := range rs {
		r.OnOutcome(o, s)
	}
}

func (rs Reporters) RunFinished(s results.Summary) {
	for _, r := range rs {
		r.RunFinished(s)
	}
}

// Manager 是 harvest 流水线的总控制器：抓取、去重、探测、保存。
type Manager struct {
	cfg        *types.Config
	fetcher    scraper.Fetcher
	classifier scheduler.Classifier
	reporter   Reporter
	mirror     *storage.RedisStorage
}

// NewManager 创建并初始化流水线管理器。
func NewManager(cfg *types.Config, fetcher scraper.Fetcher, classifier scheduler.Classifier) *Manager {
	return &Manager{
		cfg:        cfg,
		fetcher:    fetcher,
		classifier: classifier,
	}
}

// SetReporter attaches a lifecycle reporter. nil detaches it.
func (m *Manager) SetReporter(r Reporter) {
	m.reporter = r
}

// SetMirror 设置可选的 Redis 镜像存储，结果会同时写入文件和 Redis。
func (m *Manager) SetMirror(rs *storage.RedisStorage) {
	m.mirror = rs
}

// sink returns the persister for a run: the file store, plus the Redis
// mirror under the same prefix when one is configured.
func (m *Manager) sink(fs *storage.FileStorage, prefix string) results.Persister {
	if m.mirror == nil {
		return fs
	}
	rs := m.mirror
	if prefix != "" {
		rs = rs.WithPrefix(prefix)
	}
	return results.MultiPersister{fs, rs}
}

// BuildSources turns configured profiles into sources. Unknown types are
// skipped with a warning.
func (m *Manager) BuildSources(profiles []*types.SourceProfile) []scraper.Source {
	l := logger.WithComponent("Harvest/Manager")
	timeout := time.Duration(m.cfg.FetchConf.TimeoutSec) * time.Second

	sources := make([]scraper.Source, 0, len(profiles))
	for _, p := range profiles {
		switch p.Type {
		case "", config.SourceTypeText:
			sources = append(sources, scraper.NewTextSource(p.Name, p.URL, m.fetcher))
		case config.SourceTypePage:
			sources = append(sources, scraper.NewPageSource(p.Name, p.URL, m.fetcher))
		case config.SourceTypeTelegram:
			sources = append(sources, scraper.NewTelegramSource(p.URL, m.cfg.FetchConf.UserAgent, timeout).WithProxy(m.cfg.FetchConf.ProxyURL))
		default:
			l.Warn().Str("type", p.Type).Str("url", p.URL).Msg("Unknown source type, skipping.")
		}
	}
	return sources
}

// Enumerate acquires and deduplicates candidates and persists them to the
// "all" collection without probing.
func (m *Manager) Enumerate(ctx context.Context, sources []scraper.Source) ([]string, error) {
	raws := m.collect(ctx, sources)

	fs := storage.NewFileStorage(m.cfg.OutputConf.Dir, "")
	if err := m.sink(fs, "").Write(results.CollectionAll, raws, titleAll); err != nil {
		return raws, fmt.Errorf("failed to persist candidates: %w", err)
	}
	return raws, ctx.Err()
}

// Discover runs the full pipeline: acquire, persist all, probe, persist
// working and potential.
func (m *Manager) Discover(ctx context.Context, sources []scraper.Source) (results.Summary, error) {
	l := logger.WithComponent("Harvest/Manager")
	raws := m.collect(ctx, sources)

	fs := storage.NewFileStorage(m.cfg.OutputConf.Dir, "")
	persistErrors := 0
	if err := m.sink(fs, "").Write(results.CollectionAll, raws, titleAll); err != nil {
		persistErrors++
		l.Error().Err(err).Msg("Failed to persist candidates, continuing.")
	}

	summary, err := m.probe(ctx, types.ModeDiscover, raws, fs, m.sink(fs, ""), "")
	summary.PersistErrors += persistErrors
	return summary, err
}

// Replay probes a previously persisted list and writes the results with the
// "local_" file prefix.
func (m *Manager) Replay(ctx context.Context, path string) (results.Summary, error) {
	raw, err := scraper.NewLocalSource(path).Raw(ctx)
	if err != nil {
		return results.Summary{}, err
	}

	raws := lo.Uniq(scraper.ExtractCandidates(raw))

	logger.WithComponent("Harvest/Manager").Info().Str("path", path).Int("count", len(raws)).Msg("Loaded local list.")

	fs := storage.NewFileStorage(m.cfg.OutputConf.Dir, replayPrefix)
	return m.probe(ctx, types.ModeReplay, raws, fs, m.sink(fs, replayPrefix), "Source: "+path)
}

func (m *Manager) collect(ctx context.Context, sources []scraper.Source) []string {
	agg := &scraper.Aggregator{
		DecodeBase64: m.cfg.FinderConf.DecodeBase64,
		Pause:        time.Duration(m.cfg.FinderConf.SourcePauseMs) * time.Millisecond,
	}
	raws, _ := agg.Collect(ctx, sources)
	return raws
}

// probe 初始化输出文件并分批探测，结果写入 out（文件存储或带镜像的组合）。
func (m *Manager) probe(ctx context.Context, mode types.RunMode, raws []string, fs *storage.FileStorage, out results.Persister, note string) (results.Summary, error) {
	l := logger.WithComponent("Harvest/Manager")
	runID := uuid.NewString()
	startTime := time.Now()

	titlePrefix := ""
	if mode == types.ModeReplay {
		titlePrefix = "Local "
	}

	notes := []string{"Run: " + runID}
	if note != "" {
		notes = append(notes, note)
	}
	persistErrors := 0
	if err := fs.Init(results.CollectionWorking, titlePrefix+titleWorking, append(notes, "This file is updated in real-time as working configs are found")...); err != nil {
		persistErrors++
		l.Error().Err(err).Msg("Failed to initialize working output file.")
	}
	if err := fs.Init(results.CollectionPotential, titlePrefix+titlePotential, append(notes, "These configs might work but failed initial tests")...); err != nil {
		persistErrors++
		l.Error().Err(err).Msg("Failed to initialize potential output file.")
	}

	sched := scheduler.New(
		m.classifier,
		m.cfg.FinderConf.BatchSize,
		time.Duration(m.cfg.FinderConf.BatchPauseMs)*time.Millisecond,
	)

	var observer results.Observer
	if m.reporter != nil {
		observer = m.reporter
		sched.Progress = m.reporter.Progress
		m.reporter.RunStarted(runID, mode, len(raws))
	}
	sched.OnBatch = func(index, size int) {
		l.Info().Str("run_id", runID).Int("batch", index+1).Int("size", size).Int("processed", sched.Processed()).Int("total", len(raws)).Msg("Testing batch...")
	}

	agg := results.NewAggregator(out, observer)
	agg.Reset(len(raws))
	summary := agg.Consume(sched.Run(ctx, raws))

	if err := out.Write(results.CollectionWorking, summary.Working, titlePrefix+titleWorking); err != nil {
		persistErrors++
		l.Error().Err(err).Msg("Failed to write working snapshot.")
	}
	if err := out.Write(results.CollectionPotential, summary.Potential, titlePrefix+titlePotential); err != nil {
		persistErrors++
		l.Error().Err(err).Msg("Failed to write potential snapshot.")
	}
	summary.PersistErrors += persistErrors

	if m.reporter != nil {
		m.reporter.RunFinished(summary)
	}

	l.Info().
		Str("run_id", runID).
		Str("mode", string(mode)).
		Int("total", summary.Total).
		Int("working", len(summary.Working)).
		Int("potential", len(summary.Potential)).
		Int("failed", summary.Failed).
		Int("persist_errors", summary.PersistErrors).
		Dur("elapsed", time.Since(startTime)).
		Msg("Run finished.")

	return summary, ctx.Err()
}
