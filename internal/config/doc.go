// Package config defines the listener settings and provides helpers to load,
// validate and save them in YAML format. A missing settings file is created
// with the built-in defaults.
package config
