// Package config provides configuration loading for elasticreg. It
// handles loading configuration from a YAML file and provides typed,
// validated access to the resulting key/value map.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"elasticreg/internal/regerr"
)

// defaultValues mirrors the original's default_config map.
var defaultValues = map[string]any{
	"verbose":             false,
	"registered":          "registered.png",
	"map":                 "map.yaml",
	"debug_frames":        false,
	"debug_frames_prefix": "debug",
}

// requiredKeys mirrors the original's required_options: missing any of
// these is a fatal configuration error.
var requiredKeys = []string{"fixed", "moved", "nodespacing"}

// Config is a loaded, validated key/value configuration document.
type Config struct {
	values map[string]any
}

// DefaultConfig returns a Config populated with the documented defaults
// only; required keys are absent until Load or Set fills them in.
func DefaultConfig() *Config {
	values := make(map[string]any, len(defaultValues))
	for k, v := range defaultValues {
		values[k] = v
	}
	return &Config{values: values}
}

// Load reads a YAML document from configPath, merges it over the
// defaults, and validates that every required key is present.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %v", regerr.ErrConfiguration, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing config file: %v", regerr.ErrConfiguration, err)
	}
	for k, v := range raw {
		cfg.values[k] = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate reports every missing required key at once, the way
// baseconfiguration.cpp's validate_config reports every missing
// option in a single error rather than failing on the first.
func (c *Config) validate() error {
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := c.values[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing required key(s) %v", regerr.ErrConfiguration, missing)
}

// Set assigns a raw value for key, for callers building a Config
// programmatically (e.g. tests) instead of from a YAML file.
func (c *Config) Set(key string, value any) {
	c.values[key] = value
}

// Has reports whether key is present in the configuration.
func (c *Config) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// grabbable is the set of types Grab supports.
type grabbable interface {
	bool | string | float64
}

// Grab returns the typed value stored under key, converting numeric
// YAML scalars (int, float64) to float64 as needed. A missing key or a
// type that cannot be converted to T is a configuration error.
func Grab[T grabbable](c *Config, key string) (T, error) {
	var zero T
	raw, ok := c.values[key]
	if !ok {
		return zero, fmt.Errorf("%w: missing key %q", regerr.ErrConfiguration, key)
	}

	switch want := any(zero).(type) {
	case bool:
		v, ok := raw.(bool)
		if !ok {
			return zero, fmt.Errorf("%w: key %q is not a bool (got %T)", regerr.ErrConfiguration, key, raw)
		}
		return any(v).(T), nil
	case string:
		switch v := raw.(type) {
		case string:
			return any(v).(T), nil
		default:
			return zero, fmt.Errorf("%w: key %q is not a string (got %T)", regerr.ErrConfiguration, key, raw)
		}
	case float64:
		f, err := toFloat64(raw)
		if err != nil {
			return zero, fmt.Errorf("%w: key %q: %v", regerr.ErrConfiguration, key, err)
		}
		return any(f).(T), nil
	default:
		_ = want
		return zero, fmt.Errorf("%w: unsupported Grab type for key %q", regerr.ErrConfiguration, key)
	}
}

func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("not a float (got string %q)", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a float (got %T)", raw)
	}
}

// GrabFloatSlice returns a []float64 stored under key, accepting either
// a single scalar (broadcast to a length-1 slice, for nodespacing keys
// supplied as one shared spacing) or a YAML sequence of numbers.
func GrabFloatSlice(c *Config, key string) ([]float64, error) {
	raw, ok := c.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing key %q", regerr.ErrConfiguration, key)
	}
	if seq, ok := raw.([]any); ok {
		out := make([]float64, len(seq))
		for i, item := range seq {
			f, err := toFloat64(item)
			if err != nil {
				return nil, fmt.Errorf("%w: key %q[%d]: %v", regerr.ErrConfiguration, key, i, err)
			}
			out[i] = f
		}
		return out, nil
	}
	f, err := toFloat64(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: key %q: %v", regerr.ErrConfiguration, key, err)
	}
	return []float64{f}, nil
}
