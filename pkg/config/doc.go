// Package config loads application configuration.
//
// Settings come from three layers, lowest precedence first: built-in
// defaults, an optional YAML file, and STRIDE_* environment variables.
package config
