// Package config loads application configuration from an optional YAML file
// and environment variables. Environment variables always win, so deployments
// driven purely by CI secrets need no file at all.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Dropbox  DropboxConfig  `yaml:"dropbox"`
	Reddit   RedditConfig   `yaml:"reddit"`
	Telegram TelegramConfig `yaml:"telegram"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DropboxConfig holds Dropbox app credentials and the source folder.
type DropboxConfig struct {
	AppKey       string `yaml:"app_key" envconfig:"DROPBOX_APP_KEY"`
	AppSecret    string `yaml:"app_secret" envconfig:"DROPBOX_APP_SECRET"`
	RefreshToken string `yaml:"refresh_token" envconfig:"DROPBOX_REFRESH_TOKEN"`
	FolderPath   string `yaml:"folder_path" envconfig:"DROPBOX_FOLDER_PATH" default:"/REDDIT_MUL"`
}

// RedditConfig holds Reddit OAuth credentials and posting targets.
type RedditConfig struct {
	ClientID     string   `yaml:"client_id" envconfig:"REDDIT_CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" envconfig:"REDDIT_CLIENT_SECRET"`
	RefreshToken string   `yaml:"refresh_token" envconfig:"REDDIT_REFRESH_TOKEN"`
	UserAgent    string   `yaml:"user_agent" envconfig:"REDDIT_USER_AGENT" default:"reddit-video-publisher/1.0"`
	Subreddit    string   `yaml:"subreddit" envconfig:"SUBREDDIT_NAME" default:"inkwisp"`
	CrosspostTo  []string `yaml:"crosspost_to" envconfig:"CROSSPOST_SUBREDDITS" default:"motivation,GetMotivated,selflove,Quotes_Hub,inspirationalquotes,inspiration,Adulting,MotivationalThoughts"`
}

// TelegramConfig holds the notification bot credentials.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `yaml:"chat_id" envconfig:"TELEGRAM_CHAT_ID"`
}

// PipelineConfig holds tunables for the media submission pipeline.
type PipelineConfig struct {
	TempDir          string        `yaml:"temp_dir" envconfig:"PIPELINE_TEMP_DIR"`
	ToolTimeout      time.Duration `yaml:"tool_timeout" envconfig:"PIPELINE_TOOL_TIMEOUT" default:"10m"`
	PollAttempts     int           `yaml:"poll_attempts" envconfig:"PIPELINE_POLL_ATTEMPTS" default:"15"`
	PollDelay        time.Duration `yaml:"poll_delay" envconfig:"PIPELINE_POLL_DELAY" default:"10s"`
	MaxGhostRestarts int           `yaml:"max_ghost_restarts" envconfig:"PIPELINE_MAX_GHOST_RESTARTS" default:"3"`
	CrosspostDelay   time.Duration `yaml:"crosspost_delay" envconfig:"PIPELINE_CROSSPOST_DELAY" default:"6s"`
	UseWebsocket     bool          `yaml:"use_websocket" envconfig:"PIPELINE_USE_WEBSOCKET"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required credentials are set. Every missing
// credential is reported at once so a misconfigured deployment can be fixed
// in a single pass. Telegram credentials are not required; without them the
// run simply goes unnotified.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"DROPBOX_APP_KEY", c.Dropbox.AppKey},
		{"DROPBOX_APP_SECRET", c.Dropbox.AppSecret},
		{"DROPBOX_REFRESH_TOKEN", c.Dropbox.RefreshToken},
		{"REDDIT_CLIENT_ID", c.Reddit.ClientID},
		{"REDDIT_CLIENT_SECRET", c.Reddit.ClientSecret},
		{"REDDIT_REFRESH_TOKEN", c.Reddit.RefreshToken},
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}
