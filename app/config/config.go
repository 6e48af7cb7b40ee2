package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const (
	defaultPath = "config.yaml"

	envPath        = "SHOPASSIST_CONFIG"
	envOpenAIToken = "SHOPASSIST_OPENAI_TOKEN"
	envCDPToken    = "SHOPASSIST_CDP_TOKEN"
)

type Config struct {
	Log     Log     `yaml:"log"`
	HTTP    HTTP    `yaml:"http"`
	OpenAI  OpenAI  `yaml:"openai"`
	Engine  Engine  `yaml:"engine"`
	Catalog Catalog `yaml:"catalog"`
	CDP     CDP     `yaml:"cdp"`
	Kafka   Kafka   `yaml:"kafka"`
}

type Log struct {
	// Minimum level: debug, info, warn or error
	Level string `yaml:"level" example:"info" validate:"oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type HTTP struct {
	// Listen address
	Addr string `yaml:"addr" example:":8080" validate:"required"`
	// Maximum request body size in bytes
	BodyLimit int `yaml:"body_limit" example:"65536" validate:"gt=0"`
}

type OpenAI struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required,url"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"gpt-4o-mini" validate:"required"`
	// Sampling temperature
	Temperature float64 `yaml:"temperature" example:"0.7" validate:"gte=0,lte=2"`
	// Completion token limit, 0 for provider default
	MaxTokens int `yaml:"max_tokens" example:"800" validate:"gte=0"`
	// Timeout of a single attempt
	Timeout time.Duration `yaml:"timeout" example:"30s" validate:"gt=0"`
	// Extra attempts on transient failures
	Retries int `yaml:"retries" example:"2" validate:"gte=0,lte=5"`
	// Delay before the first retry, doubled on every next one
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" example:"500ms" validate:"gt=0"`
}

type Engine struct {
	// Classification profile: full or lite
	Profile string `yaml:"profile" example:"full" validate:"oneof=full lite"`
	// Intent score above which a message is shopping
	ShoppingThreshold float64 `yaml:"shopping_threshold" example:"0.7" validate:"gt=0,lte=1,gtfield=MixedThreshold"`
	// Intent score above which a message is mixed
	MixedThreshold float64 `yaml:"mixed_threshold" example:"0.3" validate:"gte=0,lt=1"`
	// General chat streak that makes a redirect eligible
	GeneralTurnsBeforeRedirect int `yaml:"general_turns_before_redirect" example:"3" validate:"gt=0"`
	// Redirect attempts per session
	MaxRedirectAttempts int `yaml:"max_redirect_attempts" example:"2" validate:"gte=0"`
	// Age of the last shopping topic that makes a redirect eligible, 0 disables
	ShoppingTopicDecay time.Duration `yaml:"shopping_topic_decay" example:"60s" validate:"gte=0"`
	// Sessions idle for longer are evicted
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl" example:"30m" validate:"gt=0"`
	// Conversation turns rendered into the model payload
	HistorySize int `yaml:"history_size" example:"20" validate:"gt=0"`
	// Products offered to the model per turn
	CatalogLimit int `yaml:"catalog_limit" example:"10" validate:"gt=0"`
}

type Catalog struct {
	// Database driver: sqlite or mysql
	Driver string `yaml:"driver" example:"sqlite" validate:"oneof=sqlite mysql"`
	// Data source name; a file path for sqlite
	DSN string `yaml:"dsn" example:"data/catalog.db" validate:"required"`
}

type CDP struct {
	// Customer data platform base url, empty disables enrichment
	BaseURL string `yaml:"base_url" example:"https://cdp.example.com/api" validate:"omitempty,url"`
	// Bearer token
	Token string `yaml:"token"`
	// Request timeout, at most 2s
	Timeout time.Duration `yaml:"timeout" example:"1500ms" validate:"gte=0,lte=2000000000"`
}

type Kafka struct {
	// Broker addresses, empty disables analytics events
	Brokers []string `yaml:"brokers" example:"localhost:9092"`
	// Topic for turn events
	Topic string `yaml:"topic" example:"shopassist.turns" validate:"required_with=Brokers"`
}

// Load reads the config file named by SHOPASSIST_CONFIG (config.yaml by
// default) after loading .env, if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv(envPath)
	if path == "" {
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.In("config").With("path", path).Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes, fills defaults, applies env overrides and validates.
func Parse(data []byte) (*Config, error) {
	var result Config

	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.In("config").Errorf("failed to parse YAML config: %w", err)
	}

	setDefaults(&result)

	if token := os.Getenv(envOpenAIToken); token != "" {
		result.OpenAI.Token = token
	}
	if token := os.Getenv(envCDPToken); token != "" {
		result.CDP.Token = token
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.In("config").Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func setDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.BodyLimit == 0 {
		c.HTTP.BodyLimit = 64 * 1024
	}

	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = 0.7
	}
	if c.OpenAI.Timeout == 0 {
		c.OpenAI.Timeout = 30 * time.Second
	}
	if c.OpenAI.Retries == 0 {
		c.OpenAI.Retries = 2
	}
	if c.OpenAI.RetryBaseDelay == 0 {
		c.OpenAI.RetryBaseDelay = 500 * time.Millisecond
	}

	if c.Engine.Profile == "" {
		c.Engine.Profile = "full"
	}
	if c.Engine.ShoppingThreshold == 0 {
		c.Engine.ShoppingThreshold = 0.7
	}
	if c.Engine.MixedThreshold == 0 {
		c.Engine.MixedThreshold = 0.3
	}
	if c.Engine.GeneralTurnsBeforeRedirect == 0 {
		c.Engine.GeneralTurnsBeforeRedirect = 3
	}
	if c.Engine.MaxRedirectAttempts == 0 {
		c.Engine.MaxRedirectAttempts = 2
	}
	if c.Engine.ShoppingTopicDecay == 0 && c.Engine.Profile == "full" {
		c.Engine.ShoppingTopicDecay = 60 * time.Second
	}
	if c.Engine.SessionIdleTTL == 0 {
		c.Engine.SessionIdleTTL = 30 * time.Minute
	}
	if c.Engine.HistorySize == 0 {
		c.Engine.HistorySize = 20
	}
	if c.Engine.CatalogLimit == 0 {
		c.Engine.CatalogLimit = 10
	}

	if c.Catalog.Driver == "" {
		c.Catalog.Driver = "sqlite"
	}
	if c.Catalog.DSN == "" && c.Catalog.Driver == "sqlite" {
		c.Catalog.DSN = "data/catalog.db"
	}

	if c.CDP.Timeout == 0 {
		c.CDP.Timeout = 2 * time.Second
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "shopassist.turns"
	}
}
