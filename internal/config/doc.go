// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Values are resolved after any .env file has been loaded into the process environment.
package config
