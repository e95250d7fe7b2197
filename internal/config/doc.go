// Package config loads notification client configuration from YAML.
//
// Values of the form ${VAR} are expanded from the environment before parsing.
// Missing optional fields receive defaults; Validate reports the first problem
// by its dotted path, for example "archive.database.host is required".
package config
