// Package config loads, validates, and normalizes reel's TOML configuration.
package config
