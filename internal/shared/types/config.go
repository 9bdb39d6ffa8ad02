package types

// SourceProfile 定义了一个候选链接来源。
// 这是 configs/sources.json (或 sources.yaml) 文件的核心数据结构。
type SourceProfile struct {
	Type string `json:"type" yaml:"type"` // 来源类型: "text" (默认), "page", "telegram"
	URL  string `json:"url" yaml:"url"`   // 订阅地址、页面地址或 Telegram 频道
	Name string `json:"name" yaml:"name"` // 日志中显示的名称，可选
}

// FinderConf 包含探测流水线的配置
type FinderConf struct {
	BatchSize     int  `ini:"batch_size"`
	BatchPauseMs  int  `ini:"batch_pause_ms"`
	SourcePauseMs int  `ini:"source_pause_ms"`
	TCPTimeoutMs  int  `ini:"tcp_timeout_ms"`
	HTTPTimeoutMs int  `ini:"http_timeout_ms"`
	DecodeBase64  bool `ini:"decode_base64"`
}

// FetchConf 包含抓取来源时使用的 HTTP 配置
type FetchConf struct {
	TimeoutSec        int    `ini:"timeout_sec"`
	UserAgent         string `ini:"user_agent"` // "random" 表示每次请求随机选择
	AcceptStatusBelow int    `ini:"accept_status_below"`
	ProxyURL          string `ini:"proxy_url"` // socks5:// 或 http:// 前置代理
}

// OutputConf 包含结果文件的配置
type OutputConf struct {
	Dir     string `ini:"dir"`
	GeoIPDB string `ini:"geoip_db"` // GeoLite2-Country.mmdb 路径，为空时不做国家标注
}

// RedisConf 包含结果镜像到 Redis 的配置，Addr 为空时不启用
type RedisConf struct {
	Addr      string `ini:"addr"`
	Password  string `ini:"password"`
	DB        int    `ini:"db"`
	KeyPrefix string `ini:"key_prefix"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// WebConf 包含进度推送服务的配置，Port 为 0 时不启动
type WebConf struct {
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
}

// Config 是 harvest 的统一配置结构体
type Config struct {
	FinderConf `ini:"finder"`
	FetchConf  `ini:"fetch"`
	OutputConf `ini:"output"`
	LogConf    `ini:"log"`
	WebConf    `ini:"web"`
	RedisConf  `ini:"redis"`
}
