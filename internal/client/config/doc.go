// Package config loads runtime configuration for the formsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   submit endpoint URL
//	-i int      online status check interval (seconds)
//	-d string   data directory
//	-l string   asset cache listen address
//	-v string   log level
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "data_dir": ".formsync",
//	  "store_driver": "sqlite",
//	  "submit_endpoint": "https://forms.example.org/api/complaints",
//	  "transport": "http",
//	  "send_timeout": "10s",
//	  "probe": "grpc",
//	  "probe_target": "forms.example.org:443",
//	  "online_check_interval": "3s",
//	  "asset_origin": "https://forms.example.org",
//	  "log_level": "debug"
//	}
//
// The package does not read environment variables; secrets such as the
// storage passphrase come from the JSON file or an interactive prompt.
package config
