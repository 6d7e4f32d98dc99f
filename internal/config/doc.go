// Package config loads, normalizes, and validates hopper's TOML
// configuration, and provides the defaults used when no file exists.
package config
