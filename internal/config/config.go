package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	API      API
	Push     Push
	Redis    Redis
	Presence Presence
	Chat     Chat
}

type API struct {
	BaseURL     string        `env:"CHAT_API_URL" env-required:"true"`
	AccessToken string        `env:"CHAT_ACCESS_TOKEN" env-required:"true"`
	Timeout     time.Duration `env:"CHAT_API_TIMEOUT" env-default:"10s"`
	MaxRetries  uint64        `env:"CHAT_API_MAX_RETRIES" env-default:"2"`
}

type Push struct {
	// Backend selects the push-channel transport: "ws" dials the
	// gateway websocket, "redis" subscribes to the fan-out channels
	// directly.
	Backend          string        `env:"CHAT_PUSH_BACKEND" env-default:"ws"`
	URL              string        `env:"CHAT_PUSH_URL" env-default:""`
	ReconnectBackoff time.Duration `env:"CHAT_PUSH_RECONNECT_BACKOFF" env-default:"3s"`
}

type Redis struct {
	Addr string `env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type Presence struct {
	RefreshInterval time.Duration `env:"CHAT_PRESENCE_INTERVAL" env-default:"30s"`
	StaleThreshold  time.Duration `env:"CHAT_PRESENCE_STALE" env-default:"60s"`
}

type Chat struct {
	PageSize       int           `env:"CHAT_PAGE_SIZE" env-default:"50"`
	TypingTTL      time.Duration `env:"CHAT_TYPING_TTL" env-default:"4s"`
	MaxContentSize int           `env:"CHAT_MAX_CONTENT_SIZE" env-default:"4096"`
	MaxFileSize    int64         `env:"CHAT_MAX_FILE_SIZE" env-default:"10485760"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment variables: %w", err)
	}

	if cfg.Presence.StaleThreshold < cfg.Presence.RefreshInterval {
		return nil, fmt.Errorf("presence stale threshold %s is below the refresh interval %s",
			cfg.Presence.StaleThreshold, cfg.Presence.RefreshInterval)
	}
	return cfg, nil
}
