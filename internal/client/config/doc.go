// Package config loads runtime configuration for the cytoguard CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file given with --config.
//  3. Command-line flags, applied by the CLI after Load returns.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "30s"
// or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "request_timeout": "1m",
//	  "max_message_bytes": 11534336,
//	  "user_id": "dr-lee"
//	}
package config
