// Package config loads, validates, and normalizes the TOML configuration
// shared by the casefile CLI and daemon.
package config
