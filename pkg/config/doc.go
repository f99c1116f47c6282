// Package config loads admind configuration from environment variables.
package config
