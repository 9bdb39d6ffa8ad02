package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"liuproxy_harvest/internal/shared/types"
)

const (
	SourceTypeText     = "text"
	SourceTypePage     = "page"
	SourceTypeTelegram = "telegram"
)

// defaultSourceURLs 是没有 sources.json 时使用的公开订阅地址。
var defaultSourceURLs = []string{
	"https://raw.githubusercontent.com/barry-far/V2ray-Configs/main/All_Configs_Sub.txt",
	"https://raw.githubusercontent.com/mfuu/v2ray/master/v2ray",
	"https://raw.githubusercontent.com/Pawdroid/Free-servers/main/sub",
	"https://raw.githubusercontent.com/aiboboxx/v2rayfree/main/v2",
	"https://raw.githubusercontent.com/ripaojiedian/freenode/main/sub",
	"https://raw.githubusercontent.com/peasoft/NoMoreWalls/master/list.txt",
	"https://raw.githubusercontent.com/mahdibland/V2RayAggregator/master/sub/sub_merge.txt",
	"https://raw.githubusercontent.com/Leon406/SubCrawler/main/sub/share/all3",
	"https://raw.githubusercontent.com/ts-sf/fly/main/v2",
	"https://raw.githubusercontent.com/freefq/free/master/v2",
	"https://raw.githubusercontent.com/ssrsub/ssr/master/v2ray",
	"https://raw.githubusercontent.com/Alvin9999/pac2/master/v2ray/1/config.txt",
	"https://raw.githubusercontent.com/Alvin9999/pac2/master/v2ray/2/config.txt",
	"https://raw.githubusercontent.com/Alvin9999/pac2/master/v2ray/3/config.txt",
	"https://sub.pmsub.me/base64",
	"https://raw.githubusercontent.com/tbbatbb/Proxy/master/dist/v2ray.config.txt",
	"https://raw.githubusercontent.com/changfengoss/pub/main/data/2024_01_17/cvjOPc.txt",
	"https://raw.githubusercontent.com/ermaozi/get_subscribe/main/subscribe/v2ray.txt",
	"https://raw.githubusercontent.com/w1770946466/Auto_proxy/main/Long_term_subscription1.txt",
	"https://raw.githubusercontent.com/w1770946466/Auto_proxy/main/Long_term_subscription2.txt",
	"https://raw.githubusercontent.com/w1770946466/Auto_proxy/main/Long_term_subscription3.txt",
}

// Default returns a Config with every field set to its default.
func Default() *types.Config {
	cfg := &types.Config{}
	cfg.FinderConf.DecodeBase64 = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values. Booleans cannot be told apart from an
// explicit false, so DecodeBase64 is left as loaded.
func ApplyDefaults(cfg *types.Config) {
	setDefaultInt(&cfg.FinderConf.BatchSize, 10)
	setDefaultInt(&cfg.FinderConf.BatchPauseMs, 100)
	setDefaultInt(&cfg.FinderConf.SourcePauseMs, 500)
	setDefaultInt(&cfg.FinderConf.TCPTimeoutMs, 3000)
	setDefaultInt(&cfg.FinderConf.HTTPTimeoutMs, 2000)
	setDefaultInt(&cfg.FetchConf.TimeoutSec, 10)
	setDefaultInt(&cfg.FetchConf.AcceptStatusBelow, 500)
	if cfg.OutputConf.Dir == "" {
		cfg.OutputConf.Dir = "output"
	}
	if cfg.LogConf.Level == "" {
		cfg.LogConf.Level = "info"
	}
}

// LoadIni 加载 harvest.ini 行为配置文件。文件不存在时使用默认配置。
func LoadIni(cfg *types.Config, fileName string) error {
	cfg.FinderConf.DecodeBase64 = true

	if _, err := os.Stat(fileName); err == nil {
		iniFile, err := ini.Load(fileName)
		if err != nil {
			return err
		}
		if err := iniFile.MapTo(cfg); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	ApplyDefaults(cfg)
	overrideFromEnvInt(&cfg.FinderConf.BatchSize, "HARVEST_BATCH_SIZE")
	overrideFromEnvString(&cfg.FetchConf.ProxyURL, "HARVEST_PROXY_URL")
	overrideFromEnvString(&cfg.RedisConf.Addr, "HARVEST_REDIS_ADDR")
	return nil
}

// ResolveSourcesFile 返回 configDir 下的来源文件路径。
// sources.json 优先，其次是 sources.yaml / sources.yml；都不存在时返回 sources.json。
func ResolveSourcesFile(configDir string) string {
	for _, name := range []string{"sources.json", "sources.yaml", "sources.yml"} {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(configDir, "sources.json")
}

// LoadSources 加载来源数据文件 (JSON 或 YAML，按扩展名判断)。
// 文件不存在时返回内置的默认来源列表。
func LoadSources(fileName string) ([]*types.SourceProfile, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSources(), nil
		}
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var profiles []*types.SourceProfile
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &profiles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(fileName), err)
		}
	default:
		if err := json.Unmarshal(data, &profiles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(fileName), err)
		}
	}
	for i, p := range profiles {
		if p.URL == "" {
			return nil, fmt.Errorf("source #%d has no url", i+1)
		}
		if p.Type == "" {
			p.Type = SourceTypeText
		}
		switch p.Type {
		case SourceTypeText, SourceTypePage, SourceTypeTelegram:
		default:
			return nil, fmt.Errorf("source #%d has unknown type %q", i+1, p.Type)
		}
	}
	return profiles, nil
}

// SaveSources 将来源列表保存到 sources.json。
func SaveSources(fileName string, profiles []*types.SourceProfile) error {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal source profiles: %w", err)
	}
	return os.WriteFile(fileName, data, 0644)
}

// DefaultSources returns the built-in list of public subscription endpoints.
func DefaultSources() []*types.SourceProfile {
	profiles := make([]*types.SourceProfile, 0, len(defaultSourceURLs))
	for _, u := range defaultSourceURLs {
		profiles = append(profiles, &types.SourceProfile{Type: SourceTypeText, URL: u})
	}
	return profiles
}

func setDefaultInt(target *int, value int) {
	if *target <= 0 {
		*target = value
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
