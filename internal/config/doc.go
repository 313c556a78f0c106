// Package config loads, validates, and normalizes Turnstile configuration.
//
// Configuration lives in a TOML file (default ~/.config/turnstile/config.toml)
// with sections per subsystem. Load applies defaults, expands ~ in paths,
// pulls secrets from the environment when unset, and validates the result so
// the rest of the system can trust every field.
package config
