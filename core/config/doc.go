// Package config provides type-safe environment variable loading with
// caching using Go generics. Each configuration type is loaded once and
// cached for subsequent calls.
//
// The package automatically loads .env files on first use and uses the
// caarlos0/env library for parsing environment variables into struct fields.
//
// Basic usage:
//
//	import "github.com/dmitrymomot/jobflow/core/config"
//
//	type StoreConfig struct {
//		URL           string        `env:"REDIS_URL,required"`
//		RetryAttempts int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"500ms"`
//	}
//
//	func main() {
//		var store StoreConfig
//
//		// Load with error handling
//		if err := config.Load(&store); err != nil {
//			log.Fatal(err)
//		}
//
//		// Or panic on failure (useful for startup)
//		config.MustLoad(&store)
//	}
//
// Each configuration type is loaded only once per application lifetime;
// repeated Load calls for the same type return the cached value.
package config
