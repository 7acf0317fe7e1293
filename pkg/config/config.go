// Package config loads YAML configuration files with environment variable
// expansion and optional validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load reads a YAML file into target, expanding ${VAR} and ${VAR:-default}
// references first. Keys absent from the file keep the values target already
// holds, so callers can pre-fill defaults.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := Parse(data, target); err != nil {
		return fmt.Errorf("config file %s: %w", filename, err)
	}
	return nil
}

// LoadOptional is Load, except that a missing file leaves the defaults in
// target untouched. Defaults are still validated.
func LoadOptional[T any](filename string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return validate(target)
	}
	return Load(filename, target)
}

// Parse decodes YAML data into target after environment expansion and
// validates the result.
func Parse[T any](data []byte, target *T) error {
	expanded := os.Expand(string(data), lookupEnv)
	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return validate(target)
}

func validate[T any](target *T) error {
	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// lookupEnv resolves NAME or NAME:-default.
func lookupEnv(key string) string {
	name, def, hasDefault := strings.Cut(key, ":-")
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	if hasDefault {
		return def
	}
	return ""
}
