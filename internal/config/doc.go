// Package config provides configuration loading and validation for the EmotiBit
// decoding tools. It handles YAML-based configuration with per-section validation
// for the UDP listener, HTTP endpoints, clock sync, export and logging.
package config
