package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Reddit struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

type Bluesky struct {
	Identifier string
	Password   string
	ServiceURL string
}

type Ollama struct {
	BaseURL string
	Model   string
}

type Config struct {
	PostgresURI string
	RedisURI    string
	APIKey      string
	ListenAddr  string
	BotFile     string
	Reddit      Reddit
	Bluesky     Bluesky
	Ollama      Ollama
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "127.0.0.1:6379"),
		APIKey:      getEnv("API_KEY", ""),
		ListenAddr:  getEnv("LISTEN_ADDR", ":3000"),
		BotFile:     getEnv("BOT_CONFIG", "config.yaml"),
		Reddit: Reddit{
			ClientID:     getEnv("REDDIT_CLIENT_ID", ""),
			ClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
			Username:     getEnv("REDDIT_USERNAME", ""),
			Password:     getEnv("REDDIT_PASSWORD", ""),
			UserAgent:    getEnv("REDDIT_USER_AGENT", "autopost/1.0"),
		},
		Bluesky: Bluesky{
			Identifier: getEnv("BLUESKY_IDENTIFIER", ""),
			Password:   getEnv("BLUESKY_PASSWORD", ""),
			ServiceURL: getEnv("BLUESKY_SERVICE_URL", "https://bsky.social"),
		},
		Ollama: Ollama{
			BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:   getEnv("OLLAMA_MODEL", "llama3"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// TargetPolicy is the per-target posting policy. A draft whose platform+target
// pair has no policy is refused at creation time.
type TargetPolicy struct {
	Name          string   `yaml:"name"`
	Platform      string   `yaml:"platform"`
	Target        string   `yaml:"target"`
	CooldownHours int      `yaml:"cooldown_hours"`
	MinLength     int      `yaml:"min_length"`
	MaxLength     int      `yaml:"max_length"`
	AllowLinks    bool     `yaml:"allow_links"`
	PostingHours  Hours    `yaml:"posting_hours"`
	BlockedFlairs []string `yaml:"blocked_flairs"`
	Keywords      []string `yaml:"keywords"`
	IsActive      bool     `yaml:"is_active"`
}

// Hours is an allowed wall-clock window. Start == End means always allowed.
type Hours struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

func (h Hours) Contains(t time.Time) bool {
	if h.Start == h.End {
		return true
	}
	hour := t.Hour()
	if h.Start < h.End {
		return hour >= h.Start && hour < h.End
	}
	// window wraps past midnight
	return hour >= h.Start || hour < h.End
}

type ModerationConfig struct {
	ToxicityThreshold   float64  `yaml:"toxicity_threshold"`
	SpamThreshold       float64  `yaml:"spam_threshold"`
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	BlacklistedWords    []string `yaml:"blacklisted_words"`
}

type RateLimitConfig struct {
	GlobalCooldownMinSec int `yaml:"global_cooldown_min"`
	GlobalCooldownMaxSec int `yaml:"global_cooldown_max"`
	MaxPostsPerDay       int `yaml:"max_posts_per_day"`
	MaxCommentsPerDay    int `yaml:"max_comments_per_day"`
	MaxActionsPerHour    int `yaml:"max_actions_per_hour"`
}

type SchedulerConfig struct {
	MonitorIntervalMinutes int `yaml:"monitor_interval_minutes"`
	PublishIntervalMinutes int `yaml:"publish_interval_minutes"`
	DailyReportHour        int `yaml:"daily_report_hour"`
}

// BotConfig is the YAML file holding target policies and tuning knobs.
type BotConfig struct {
	Targets    []TargetPolicy   `yaml:"targets"`
	Moderation ModerationConfig `yaml:"moderation"`
	RateLimits RateLimitConfig  `yaml:"rate_limits"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

func LoadBotConfig(path string) (*BotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bot config: %w", err)
	}

	var bc BotConfig
	if err := yaml.Unmarshal(data, &bc); err != nil {
		return nil, fmt.Errorf("failed to parse bot config: %w", err)
	}

	if bc.RateLimits.GlobalCooldownMinSec == 0 {
		bc.RateLimits.GlobalCooldownMinSec = 90
	}
	if bc.RateLimits.GlobalCooldownMaxSec == 0 {
		bc.RateLimits.GlobalCooldownMaxSec = 150
	}
	if bc.RateLimits.MaxPostsPerDay == 0 {
		bc.RateLimits.MaxPostsPerDay = 10
	}
	if bc.RateLimits.MaxCommentsPerDay == 0 {
		bc.RateLimits.MaxCommentsPerDay = 50
	}
	if bc.RateLimits.MaxActionsPerHour == 0 {
		bc.RateLimits.MaxActionsPerHour = 10
	}
	if bc.Moderation.ToxicityThreshold == 0 {
		bc.Moderation.ToxicityThreshold = 0.7
	}
	if bc.Moderation.SpamThreshold == 0 {
		bc.Moderation.SpamThreshold = 0.7
	}
	if bc.Moderation.SimilarityThreshold == 0 {
		bc.Moderation.SimilarityThreshold = 0.85
	}
	if bc.Scheduler.MonitorIntervalMinutes == 0 {
		bc.Scheduler.MonitorIntervalMinutes = 15
	}
	if bc.Scheduler.PublishIntervalMinutes == 0 {
		bc.Scheduler.PublishIntervalMinutes = 30
	}

	for i := range bc.Targets {
		t := &bc.Targets[i]
		if t.Platform == "" || t.Target == "" {
			return nil, fmt.Errorf("target %q is missing platform or target", t.Name)
		}
		if t.CooldownHours == 0 {
			t.CooldownHours = 12
		}
		if t.MaxLength == 0 {
			t.MaxLength = 2000
		}
	}

	return &bc, nil
}

// PolicyFor looks up the policy for a platform+target pair.
func (bc *BotConfig) PolicyFor(platform, target string) (TargetPolicy, bool) {
	for _, t := range bc.Targets {
		if strings.EqualFold(t.Platform, platform) && strings.EqualFold(t.Target, target) {
			return t, true
		}
	}
	return TargetPolicy{}, false
}
