package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"ai-group-chat"`
	StaticDir   string `env:"STATIC_DIR" envDefault:"wwwroot"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// OpenAI / Azure OpenAI
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIEndpoint   string `env:"OPENAI_ENDPOINT"`
	OpenAIAzure      bool   `env:"OPENAI_AZURE" envDefault:"false"`
	OpenAIAPIVersion string `env:"OPENAI_API_VERSION" envDefault:"2024-06-01"`
	OpenAIModel      string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	AssistantPrefix    string        `env:"ASSISTANT_PREFIX" envDefault:"@gpt"`
	AssistantName      string        `env:"ASSISTANT_NAME" envDefault:"assistant"`
	FlushThreshold     int           `env:"FLUSH_THRESHOLD" envDefault:"20"`
	HistoryMaxTurns    int           `env:"HISTORY_MAX_TURNS" envDefault:"0"`
	GenerationTimeout  time.Duration `env:"GENERATION_TIMEOUT" envDefault:"2m"`
	CancelOnDisconnect bool          `env:"CANCEL_ON_DISCONNECT" envDefault:"false"`

	// Security metadata attached to generation requests. Only "true", in any
	// case, enables it; every other value leaves it off.
	DefenderFlag    string `env:"MS_DEFENDERFORCLOUD_ENABLED"`
	DefenderEnabled bool
	ApplicationName string `env:"APPLICATION_NAME"`
	TrustForwarded  bool   `env:"TRUST_FORWARDED_FOR" envDefault:"true"`

	// Optional platform services. Empty means disabled.
	RedisAddr    string `env:"REDIS_ADDR"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"groupchat"`
	DatabaseDSN  string `env:"DB_DSN"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.OpenAIModel = strings.TrimSpace(cfg.OpenAIModel)
	cfg.DefenderEnabled = strings.EqualFold(strings.TrimSpace(cfg.DefenderFlag), "true")
	if cfg.FlushThreshold < 0 {
		cfg.FlushThreshold = 0
	}
	if cfg.HistoryMaxTurns < 0 {
		cfg.HistoryMaxTurns = 0
	}
	return cfg, nil
}

func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

func (c *Config) ArchiveEnabled() bool {
	return strings.TrimSpace(c.DatabaseDSN) != ""
}
