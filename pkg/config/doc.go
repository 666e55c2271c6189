// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
//
//   - The default .env file in the working directory is loaded once, if present.
//   - WithEnvFiles loads additional .env files without overriding variables
//     that are already set.
//   - Struct fields are populated from env tags; WithPrefix prepends a prefix
//     to every tag so one struct type can serve several named components.
//   - Every (type, prefix) pair is parsed once and cached for the lifetime of
//     the process. ResetCache clears the cache in tests.
//
// # Usage
//
//	type WorkerConfig struct {
//	    Name     string `env:"NAME" envDefault:"audit"`
//	    Capacity int    `env:"INITIAL_CAPACITY" envDefault:"64"`
//	}
//
//	var cfg WorkerConfig
//	if err := config.Load(&cfg, config.WithPrefix("AUDIT_")); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Handling
//
// Sentinel errors can be compared with errors.Is: ErrParsingConfig,
// ErrLoadingEnvFile, ErrConfigNotLoaded and ErrNilPointer.
package config
