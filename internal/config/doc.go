// Package config handles configuration loading for coven-cloudworker.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CLOUDWORKER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/cloudworker.yaml
//  3. ~/.config/coven/cloudworker.yaml
//
// A missing file is not an error: defaults apply and the API key is read
// from JULES_API_KEY. Files ending in .toml are decoded as TOML.
//
// # Environment Variable Expansion
//
//	jules:
//	  api_key: "${JULES_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	poll:
//	  interval: "30s"
//	  failure_log_window: "10m"
//
// # Example
//
//	provider: jules
//	jules:
//	  api_key: "${JULES_API_KEY}"
//	  timeout: "30s"
//	  requests_per_second: 2
//	store:
//	  driver: sqlite
//	  path: "~/.local/share/coven/cloudworker.db"
//	sessions:
//	  max_review_rounds: 3
//	notify:
//	  sink: terminal
//	logging:
//	  level: info
//	  format: text
package config
