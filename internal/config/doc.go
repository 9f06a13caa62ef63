// Package config handles configuration loading for kook-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) with
// environment variable expansion. Defaults fill every optional field.
//
// # Configuration File
//
// The CLI looks in order at:
//
//  1. Path from the KOOK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/kook/gateway.yaml (or ~/.config/kook/gateway.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	bot:
//	  token: "${KOOK_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	bot:
//	  token: "${KOOK_TOKEN}"
//	  token_type: "bot"            # bot, bearer
//	  api_base: "https://www.kookapp.cn"
//	  skip_self: true
//	  echo: true
//
//	gateway:
//	  compress: false
//	  handshake_timeout: "6s"
//	  heartbeat_interval: "6s"
//
//	dispatch:
//	  max_in_flight: 0             # 0 = one goroutine per event
//	  queue_size: 256
//	  dedupe_ttl: "5m"             # 0 disables msg_id dedupe
//	  dedupe_size: 4096
//
//	server:
//	  http_addr: "127.0.0.1:9102"  # /health, /health/ready, /metrics
//
//	logging:
//	  level: "info"                # debug, info, warn, error
//	  format: "text"               # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Durations use time.ParseDuration syntax.
package config
