// Package config loads and validates the gateway configuration.
//
// Load() layers three sources: compiled-in defaults, an optional YAML file
// (config.yaml or HGC_CONFIG), and HGC_* environment overrides. The final
// result is validated before the process is allowed to start.
package config
