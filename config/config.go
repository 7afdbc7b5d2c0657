package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the service configuration read from the environment.
type Config struct {
	DatabaseURL    string        `env:"DATABASE_URL,required,notEmpty"`
	ServiceToken   string        `env:"BOT_SERVICE_TOKEN,required,notEmpty"`
	Port           int           `env:"PORT" envDefault:"5200"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	ChatRelayURL   string        `env:"CHAT_RELAY_URL"`
	RelayQueueSize int           `env:"RELAY_QUEUE_SIZE" envDefault:"256"`
	StatusFile     string        `env:"STATUS_FILE" envDefault:"./resources/statuses.txt"`
	StatusInterval time.Duration `env:"STATUS_INTERVAL" envDefault:"2h"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	Deathroll Deathroll
	R2        R2
}

// Deathroll holds the game's timing and range limits.
type Deathroll struct {
	TurnTimeout     time.Duration `env:"DEATHROLL_TURN_TIMEOUT" envDefault:"60s"`
	CoinTossTimeout time.Duration `env:"DEATHROLL_COIN_TOSS_TIMEOUT" envDefault:"5m"`
	DefaultCeiling  int           `env:"DEATHROLL_DEFAULT_CEILING" envDefault:"999"`
	MaxCeiling      int           `env:"DEATHROLL_MAX_CEILING" envDefault:"999"`
	MaxTossRetries  int           `env:"DEATHROLL_MAX_TOSS_RETRIES" envDefault:"0"`
}

// R2 is the optional transcript archive bucket. Archiving is disabled unless
// every field is set.
type R2 struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
}

func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks relations between settings that tags cannot express.
func (c Config) Validate() error {
	d := c.Deathroll
	if d.MaxCeiling <= 0 {
		return fmt.Errorf("DEATHROLL_MAX_CEILING must be positive, got %d", d.MaxCeiling)
	}
	if d.DefaultCeiling <= 0 || d.DefaultCeiling > d.MaxCeiling {
		return fmt.Errorf("DEATHROLL_DEFAULT_CEILING must be in [1, %d], got %d", d.MaxCeiling, d.DefaultCeiling)
	}
	if d.MaxTossRetries < 0 {
		return fmt.Errorf("DEATHROLL_MAX_TOSS_RETRIES must not be negative")
	}
	if d.TurnTimeout <= 0 || d.CoinTossTimeout <= 0 {
		return fmt.Errorf("deathroll timeouts must be positive")
	}
	return nil
}

// Origins joins AllowedOrigins for fiber's CORS config.
func (c Config) Origins() string {
	out := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return strings.Join(out, ",")
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
