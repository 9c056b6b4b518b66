package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	APIAddr       string `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN   string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Remote sink. Deliberately not notEmpty: a missing sink configuration
	// is surfaced as a configuration error when an export is triggered, not
	// at boot, so the rest of the service stays usable.
	QragaEndpointURL string `env:"QRAGA_ENDPOINT_URL"`
	QragaSiteID      string `env:"QRAGA_SITE_ID"`
	QragaAPIKey      string `env:"QRAGA_API_KEY"`

	StoreCurrency string        `env:"STORE_CURRENCY" envDefault:"USD"`
	BatchSize     int           `env:"EXPORT_BATCH_SIZE" envDefault:"50"`
	JobTTL        time.Duration `env:"EXPORT_JOB_TTL" envDefault:"24h"`
	SinkTimeout   time.Duration `env:"SINK_TIMEOUT" envDefault:"45s"`
	SinkRPS       float64       `env:"SINK_RPS" envDefault:"5"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
