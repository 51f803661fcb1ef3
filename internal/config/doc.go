// Package config handles configuration loading for vision-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML, when the path ends in
// .toml) with environment variable expansion, then defaults are applied,
// VISION_* environment overrides are layered on top, and the result is
// validated.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from VISION_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/vision/gateway.yaml
//  3. ~/.config/vision/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${JWT_SECRET}"
//
// # Environment Overrides
//
// A handful of deployment-sensitive values can be set directly:
//
//	VISION_HTTP_ADDR, VISION_GRPC_ADDR, VISION_JWT_SECRET,
//	VISION_DB_DRIVER, VISION_DB_PATH, VISION_DB_DSN,
//	VISION_PROCESSING_BACKEND, VISION_PROCESSING_BASE_URL, VISION_PROCESSING_API_KEY,
//	VISION_LOG_LEVEL, VISION_LOG_FORMAT
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	gateway:
//	  heartbeat_interval: "30s"
//	processing:
//	  timeout: "30s"
//	  cache_ttl: "1h"
package config
