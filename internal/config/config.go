package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const EnvPrefix = "BAZAAR_"

type Config struct {
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080" validate:"required,url"`
	DBFile  string `env:"DB" envDefault:"bazaar.db" validate:"required"`
	// Token is adopted as the session on start; empty reuses the stored one.
	Token string `env:"TOKEN"`

	Heartbeat         time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"20s" validate:"gt=0"`
	ReconnectBase     time.Duration `env:"RECONNECT_BASE" envDefault:"1s" validate:"gt=0"`
	ReconnectMax      time.Duration `env:"RECONNECT_MAX" envDefault:"30s" validate:"gt=0"`
	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS" envDefault:"5" validate:"gte=0"`
	TypingTimeout     time.Duration `env:"TYPING_TIMEOUT" envDefault:"3s" validate:"gt=0"`

	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"5" validate:"gte=0"`
	SummaryTTL        time.Duration `env:"SUMMARY_TTL" envDefault:"30s" validate:"gt=0"`
	MaxImageDimension int           `env:"MAX_IMAGE_DIMENSION" envDefault:"1600" validate:"gte=0"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
}

// Load reads the given .env files (".env" when none are named; missing
// files are skipped), then the BAZAAR_ environment, then validates.
// Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%sBASE_URL must be an http or https url, got %q", EnvPrefix, c.BaseURL)
	}

	if c.ReconnectMax < c.ReconnectBase {
		return fmt.Errorf("%sRECONNECT_MAX (%s) must not be less than %sRECONNECT_BASE (%s)",
			EnvPrefix, c.ReconnectMax, EnvPrefix, c.ReconnectBase)
	}

	return nil
}
