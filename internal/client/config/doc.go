// Package config loads runtime configuration for the share coordinator.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file selected with -c or -config.
//  3. Command-line flags bound by (*Config).BindFlags.
//
// # File schema
//
// Intervals use timex.Duration, so values can be strings like "90s" or
// integer nanoseconds:
//
//	{
//	  "group_id": "group.gophshare",
//	  "bucket_driver": "sqlite",
//	  "database_path": "/var/lib/gophshare/bucket.db",
//	  "transfer_timeout": "2m",
//	  "orphan_ttl": "24h"
//	}
package config
