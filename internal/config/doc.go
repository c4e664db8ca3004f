// Package config handles YAML and TOML configuration loading with environment
// variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. Files are decoded over Default(), so omitted fields keep
// their defaults and an explicit zero (for example reconnect.max_attempts: 0)
// is preserved.
package config
