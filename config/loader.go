package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader builds a Config from defaults, an optional YAML file, and
// environment-variable overrides, in that priority order. Modeled on
// agentflow's config.Loader (WithConfigPath/WithEnvPrefix/Load).
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader returns a Loader with no YAML path and the env prefix
// "CORTEXMEM".
func NewLoader() *Loader {
	return &Loader{envPrefix: "CORTEXMEM"}
}

// WithConfigPath sets the YAML file to merge over the defaults.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix env-var overrides are read under
// (e.g. "CORTEXMEM" turns storage.provider into CORTEXMEM_STORAGE_PROVIDER).
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds the final Config: defaults, then YAML file (if set and
// present), then environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", l.configPath, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", l.configPath, err)
			}
		}
	}

	if err := applyEnvOverrides(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides walks v's struct fields recursively, looking up
// PREFIX_<path>_<env-tag> in the environment and setting matching
// fields. Mirrors the teacher's reflection-based override walk.
func applyEnvOverrides(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "-" {
			continue
		}

		if fv.Kind() == reflect.Struct {
			if err := applyEnvOverrides(fv, prefix+"_"+envName(field)); err != nil {
				return err
			}
			continue
		}

		key := prefix + "_" + envName(field)
		if envTag != "" {
			key = prefix + "_" + envTag
		}
		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setFromString(fv, raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func envName(field reflect.StructField) string {
	name := field.Tag.Get("yaml")
	if name == "" {
		name = field.Name
	}
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func setFromString(fv reflect.Value, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			fv.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s for env override", fv.Kind())
	}
	return nil
}
