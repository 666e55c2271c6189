package mpsc

import (
	"time"

	"github.com/dmitrymomot/mpsc/pkg/config"
)

// DefaultEnvPrefix is prepended to every Config variable when LoadConfig is
// called with an empty prefix.
const DefaultEnvPrefix = "MPSC_"

// Config holds worker settings that can be supplied through the environment
type Config struct {
	Name            string        `env:"NAME" envDefault:"mpsc"`
	InitialCapacity int           `env:"INITIAL_CAPACITY" envDefault:"64"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogDiscarded    bool          `env:"LOG_DISCARDED" envDefault:"true"`
}

// LoadConfig reads a Config from environment variables named prefix+TAG,
// e.g. MPSC_INITIAL_CAPACITY. Different prefixes let several workers in one
// process be tuned independently.
func LoadConfig(prefix string) (Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	var cfg Config
	if err := config.Load(&cfg, config.WithPrefix(prefix)); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
