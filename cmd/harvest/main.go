package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"liuproxy_harvest/internal/service/web"
	"liuproxy_harvest/internal/shared/config"
	"liuproxy_harvest/internal/shared/logger"
	"liuproxy_harvest/internal/shared/types"
	manager "liuproxy_harvest/proxypool"
	"liuproxy_harvest/proxypool/geo"
	"liuproxy_harvest/proxypool/results"
	"liuproxy_harvest/proxypool/scraper"
	"liuproxy_harvest/proxypool/storage"
	"liuproxy_harvest/proxypool/validator"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	enumerateOnly := flag.Bool("all", false, "Only collect and save candidates, do not probe them")
	localFile := flag.String("local", "", "Probe a previously saved list instead of fetching sources")
	showProgress := flag.Bool("progress", false, "Show a progress bar while probing")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "harvest.ini")
	sourcesPath := config.ResolveSourcesFile(*configDir)

	// 1. 加载 .ini 行为配置
	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 1.1 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. 构建抓取与探测组件
	fetcher, err := scraper.NewHTTPFetcher(scraper.FetcherOptions{
		Timeout:           time.Duration(cfg.FetchConf.TimeoutSec) * time.Second,
		UserAgent:         cfg.FetchConf.UserAgent,
		AcceptStatusBelow: cfg.FetchConf.AcceptStatusBelow,
		ProxyURL:          cfg.FetchConf.ProxyURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create fetcher")
	}
	classifier := validator.NewClassifier(validator.Options{
		TCPTimeout:  time.Duration(cfg.FinderConf.TCPTimeoutMs) * time.Millisecond,
		HTTPTimeout: time.Duration(cfg.FinderConf.HTTPTimeoutMs) * time.Millisecond,
	})
	m := manager.NewManager(cfg, fetcher, classifier)

	// 2.1 可选的 Redis 镜像
	if cfg.RedisConf.Addr != "" {
		rs, err := storage.NewRedisStorage(cfg.RedisConf.Addr, cfg.RedisConf.Password, cfg.RedisConf.DB, cfg.RedisConf.KeyPrefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rs.Close()
		m.SetMirror(rs)
		logger.Info().Str("addr", cfg.RedisConf.Addr).Msg("Mirroring results to redis.")
	}

	// 3. 可选的进度推送服务
	var wg sync.WaitGroup
	webCtx, stopWeb := context.WithCancel(ctx)
	hub := web.NewHub()
	feed := web.NewFeed(hub)
	if cfg.OutputConf.GeoIPDB != "" {
		locator, err := geo.Open(cfg.OutputConf.GeoIPDB)
		if err != nil {
			logger.Warn().Err(err).Msg("GeoIP disabled")
		} else {
			defer locator.Close()
			feed.SetLocator(locator)
		}
	}
	if err := web.StartServer(webCtx, &wg, cfg.WebConf, hub, feed); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start progress feed")
	}

	var reporters manager.Reporters
	if cfg.WebConf.Port > 0 {
		reporters = append(reporters, feed)
	}
	if *showProgress {
		reporters = append(reporters, &barReporter{})
	}
	if len(reporters) > 0 {
		m.SetReporter(reporters)
	}

	// 4. 运行
	var summary results.Summary
	switch {
	case *localFile != "":
		summary, err = m.Replay(ctx, *localFile)
	case *enumerateOnly:
		var raws []string
		profiles := mustLoadSources(sourcesPath)
		raws, err = m.Enumerate(ctx, m.BuildSources(profiles))
		logger.Info().Int("count", len(raws)).Str("dir", cfg.OutputConf.Dir).Msg("Candidates saved.")
	default:
		profiles := mustLoadSources(sourcesPath)
		summary, err = m.Discover(ctx, m.BuildSources(profiles))
	}

	stopWeb()
	wg.Wait()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn().Msg("Interrupted, partial results were saved.")
		} else {
			logger.Fatal().Err(err).Msg("Run failed")
		}
	}

	if *enumerateOnly && *localFile == "" {
		return
	}
	logger.Info().
		Int("working", len(summary.Working)).
		Int("potential", len(summary.Potential)).
		Int("failed", summary.Failed).
		Str("dir", cfg.OutputConf.Dir).
		Msg("Done.")
}

func mustLoadSources(path string) []*types.SourceProfile {
	profiles, err := config.LoadSources(path)
	if err != nil {
		logger.Fatal().Err(err).Msgf("Failed to load sources file '%s'", path)
	}
	logger.Info().Int("count", len(profiles)).Msg("Sources loaded.")
	return profiles
}
