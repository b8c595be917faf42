// Package config loads runtime configuration for the tacticallink client.
//
// Sources and precedence (later wins):
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A .env file in the working directory and TACTICALLINK_* environment
//     variables. Real environment variables win over .env entries.
//  3. An optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are read as YAML, anything else as JSON.
//  4. Command-line flags.
//
// Supported flags
//
//	-a string      backend base URL
//	-db string     path of the local sqlite database
//	-i int         online status check interval (seconds)
//	-t duration    per-request timeout
//	-log-level     debug, info, warn or error
//	-log-format    text or json
//
// Environment variables
//
//	TACTICALLINK_SERVER_URL, TACTICALLINK_DB_PATH, TACTICALLINK_REQUEST_TIMEOUT,
//	TACTICALLINK_LOG_LEVEL, TACTICALLINK_LOG_FORMAT
//
// # File schema
//
// Intervals use timex.Duration, so "3s" and integer nanoseconds both work:
//
//	{
//	  "server_url": "http://127.0.0.1:5000",
//	  "request_timeout": "10s",
//	  "poll": {"direct_messages": "3s", "threat_status": "5s"},
//	  "breaker": {"failures": 5, "timeout": "30s"}
//	}
package config
