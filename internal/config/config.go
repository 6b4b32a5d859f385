package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"TubeArticles/internal/retry"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "TUBEARTICLES_CONFIG"
	databaseDSNEnv     = "DATABASE_DSN"
	redisAddrEnv       = "REDIS_ADDR"
	mistralAPIKeyEnv   = "MISTRAL_API_KEY"
	anthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	youtubeAPIKeyEnv   = "YOUTUBE_API_KEY"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	logLevelEnv        = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Dedup         DedupConfig        `yaml:"dedup"`
	Monitor       MonitorConfig      `yaml:"monitor"`
	Timeouts      TimeoutConfig      `yaml:"timeouts"`
	Feed          FeedConfig         `yaml:"feed"`
	Transcript    TranscriptConfig   `yaml:"transcript"`
	LLM           LLMConfig          `yaml:"llm"`
	WordPress     WordPressConfig    `yaml:"wordpress"`
	Notifications NotificationConfig `yaml:"notifications"`
	Archive       ArchiveConfig      `yaml:"archive"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// LoggingConfig controls slog level and the optional rotating file.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"loglevel"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb" validate:"gte=0"`
	MaxBackups int    `yaml:"maxBackups" validate:"gte=0"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns" validate:"gte=0"`
	AutoMigrate  bool   `yaml:"autoMigrate"`
}

// DedupConfig selects where processed video IDs are kept.
type DedupConfig struct {
	Backend       string `yaml:"backend" validate:"oneof=file redis postgres"`
	Path          string `yaml:"path" validate:"required_if=Backend file"`
	RedisAddr     string `yaml:"redisAddr" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb" validate:"gte=0"`
	RedisKey      string `yaml:"redisKey"`
}

// MonitorConfig tunes the per-channel polling loop.
type MonitorConfig struct {
	Lookback                      time.Duration `yaml:"lookback" validate:"gt=0"`
	PollInterval                  time.Duration `yaml:"pollInterval" validate:"gt=0"`
	ErrorBackoff                  time.Duration `yaml:"errorBackoff" validate:"gt=0"`
	MarkProcessedOnPublishFailure bool          `yaml:"markProcessedOnPublishFailure"`
}

// TimeoutConfig bounds each pipeline stage.
type TimeoutConfig struct {
	Feed       time.Duration `yaml:"feed" validate:"gt=0"`
	Transcript time.Duration `yaml:"transcript" validate:"gt=0"`
	Generate   time.Duration `yaml:"generate" validate:"gt=0"`
	Publish    time.Duration `yaml:"publish" validate:"gt=0"`
}

// FeedConfig configures channel listing.
type FeedConfig struct {
	RSSURL        string       `yaml:"rssUrl" validate:"required"`
	YouTubeAPIKey string       `yaml:"youtubeApiKey"`
	SearchBaseURL string       `yaml:"searchBaseUrl"`
	MaxResults    int64        `yaml:"maxResults" validate:"gte=1,lte=50"`
	Retry         retry.Policy `yaml:"retry"`
}

// TranscriptConfig configures caption download.
type TranscriptConfig struct {
	BaseURL   string   `yaml:"baseUrl" validate:"required,url"`
	Languages []string `yaml:"languages" validate:"min=1,dive,required"`
	MinWords  int      `yaml:"minWords" validate:"gte=1"`
}

// LLMConfig defines how to contact the article generator.
type LLMConfig struct {
	Provider          string  `yaml:"provider" validate:"oneof=openai anthropic"`
	Endpoint          string  `yaml:"endpoint" validate:"required_if=Provider openai"`
	Model             string  `yaml:"model" validate:"required"`
	APIKey            string  `yaml:"apiKey"`
	AnthropicBaseURL  string  `yaml:"anthropicBaseUrl"`
	MaxTokens         int     `yaml:"maxTokens" validate:"gte=1"`
	Temperature       float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	SystemPrompt      string  `yaml:"systemPrompt"`
	RequestsPerMinute float64 `yaml:"requestsPerMinute" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// WordPressConfig holds publish-time defaults shared by every site.
type WordPressConfig struct {
	PostStatus      string        `yaml:"postStatus" validate:"oneof=draft publish pending private"`
	DefaultCategory string        `yaml:"defaultCategory"`
	Timeout         time.Duration `yaml:"timeout" validate:"gt=0"`
	Retry           retry.Policy  `yaml:"retry"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	BaseURL  string `yaml:"baseUrl"`
}

// ArchiveConfig enables the local HTML copy of generated articles.
type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

// SchedulerConfig defines when monitors are reconciled with stored intent.
type SchedulerConfig struct {
	ReconcileCron string         `yaml:"reconcileCron"`
	Timezone      string         `yaml:"timezone"`
	location      *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
// File values are decoded on top of the defaults, so omitted keys keep them.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg := defaultConfig()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Transcript.Languages) == 0 {
		cfg.Transcript.Languages = defaultConfig().Transcript.Languages
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Dedup.Backend = "redis"
		c.Dedup.RedisAddr = v
	}

	if v := os.Getenv(mistralAPIKeyEnv); v != "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(anthropicAPIKeyEnv); v != "" && c.LLM.Provider == "anthropic" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(youtubeAPIKeyEnv); v != "" {
		c.Feed.YouTubeAPIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 5},
		Database: DatabaseConfig{MaxOpenConns: 10, AutoMigrate: true},
		Dedup: DedupConfig{
			Backend:  "file",
			Path:     "processed_videos.json",
			RedisKey: "tubearticles:processed_videos",
		},
		Monitor: MonitorConfig{
			Lookback:                      48 * time.Hour,
			PollInterval:                  30 * time.Minute,
			ErrorBackoff:                  5 * time.Minute,
			MarkProcessedOnPublishFailure: true,
		},
		Timeouts: TimeoutConfig{
			Feed:       30 * time.Second,
			Transcript: 30 * time.Second,
			Generate:   60 * time.Second,
			Publish:    30 * time.Second,
		},
		Feed: FeedConfig{
			RSSURL:     "https://www.youtube.com/feeds/videos.xml?channel_id=%s",
			MaxResults: 25,
			Retry:      retry.DefaultPolicy(),
		},
		Transcript: TranscriptConfig{
			BaseURL:   "https://www.youtube.com/api/timedtext",
			Languages: []string{"en", "fr"},
			MinWords:  50,
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Endpoint:          "https://api.mistral.ai/v1/chat/completions",
			Model:             "mistral-large-latest",
			MaxTokens:         16384,
			Temperature:       0.7,
			RequestsPerMinute: 20,
			Burst:             1,
		},
		WordPress: WordPressConfig{
			PostStatus:      "draft",
			DefaultCategory: "YouTube",
			Timeout:         30 * time.Second,
			Retry:           retry.DefaultPolicy(),
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BaseURL: "https://api.telegram.org"},
		},
		Archive:   ArchiveConfig{Dir: "articles"},
		Scheduler: SchedulerConfig{ReconcileCron: "*/5 * * * *", Timezone: defaultTimezone, location: tz},
		Metrics:   MetricsConfig{Addr: ":9102"},
	}
}
