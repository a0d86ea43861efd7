// Package config loads, normalizes, and validates recap configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, merges an optional .env file that sits next
// to the config, and honours environment fallbacks such as RECAP_LLM_API_KEY
// and RECAP_IO_WORKERS. The Config type centralizes every knob the daemon and
// CLI need so that pool sizes, scheduler limits, and backend credentials are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, resolved worker counts, and clear validation errors.
package config
