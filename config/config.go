// Package config loads the client configuration.
//
// Values are layered with increasing precedence:
//
//	defaults < YAML file < SRS_* environment variables < command-line overrides
//
// Overrides are addressed by their YAML path, e.g. "poll.interval" or
// "script.streams". Durations use time.ParseDuration syntax and lists are
// comma separated.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/logging"
	"github.com/smnsjas/go-srsclient/pipeline"
	"github.com/smnsjas/go-srsclient/poll"
	"github.com/smnsjas/go-srsclient/runspace"
)

// EnvPrefix prefixes every environment variable read by the loader.
const EnvPrefix = "SRS_"

// Config is the complete client configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Runspace RunspaceConfig `yaml:"runspace"`
	Script   ScriptConfig   `yaml:"script"`
	Poll     PollConfig     `yaml:"poll"`
	Logging  logging.Config `yaml:"logging"`
}

// ServerConfig locates the service.
type ServerConfig struct {
	Address        string        `yaml:"address" env:"SRS_SERVER_ADDRESS"`
	Insecure       bool          `yaml:"insecure" env:"SRS_SERVER_INSECURE"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SRS_SERVER_REQUEST_TIMEOUT"`
	// Logout ends the API session after the run.
	Logout bool `yaml:"logout" env:"SRS_SERVER_LOGOUT"`
}

// RunspaceConfig configures the remote session.
type RunspaceConfig struct {
	Name                  string        `yaml:"name" env:"SRS_RUNSPACE_NAME"`
	RunVCConnectionScript bool          `yaml:"run_vc_connection_script" env:"SRS_RUNSPACE_VC_CONNECTION"`
	Timeout               time.Duration `yaml:"timeout" env:"SRS_RUNSPACE_TIMEOUT"`
	CloseTimeout          time.Duration `yaml:"close_timeout" env:"SRS_RUNSPACE_CLOSE_TIMEOUT"`
}

// ScriptConfig configures script submission and result collection.
type ScriptConfig struct {
	Name         string        `yaml:"name" env:"SRS_SCRIPT_NAME"`
	OutputFormat string        `yaml:"output_format" env:"SRS_SCRIPT_OUTPUT_FORMAT"`
	Streams      []string      `yaml:"streams" env:"SRS_SCRIPT_STREAMS"`
	JobTimeout   time.Duration `yaml:"job_timeout" env:"SRS_SCRIPT_JOB_TIMEOUT"`
}

// PollConfig configures status polling.
type PollConfig struct {
	Interval time.Duration `yaml:"interval" env:"SRS_POLL_INTERVAL"`
	// MaxAttempts caps polls per wait. Zero means no cap.
	MaxAttempts int `yaml:"max_attempts" env:"SRS_POLL_MAX_ATTEMPTS"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			RequestTimeout: 30 * time.Second,
		},
		Runspace: RunspaceConfig{
			Name:                  runspace.DefaultName,
			RunVCConnectionScript: true,
			Timeout:               runspace.DefaultCreateTimeout,
			CloseTimeout:          runspace.DefaultCloseTimeout,
		},
		Script: ScriptConfig{
			Name:       pipeline.DefaultScriptName,
			Streams:    []string{"error"},
			JobTimeout: pipeline.DefaultJobTimeout,
		},
		Poll: PollConfig{
			Interval: poll.DefaultInterval,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Loader reads configuration from every source.
type Loader struct {
	path      string
	overrides map[string]string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads the process environment.
func NewLoader() *Loader {
	return &Loader{
		overrides: make(map[string]string),
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigPath sets the YAML file to read. An empty path reads none.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.path = path
	return l
}

// WithOverrides sets values that win over every other source.
func (l *Loader) WithOverrides(overrides map[string]string) *Loader {
	l.overrides = overrides
	return l
}

// WithEnv replaces the environment lookup.
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load layers every source over the defaults and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		if err := loadFile(l.path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(reflect.ValueOf(cfg).Elem(), l.lookupEnv); err != nil {
		return nil, err
	}
	for key, value := range l.overrides {
		if err := Set(cfg, key, value); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return srserrors.Wrap(err, srserrors.ErrCodeConfigInvalid, "read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return srserrors.Wrap(err, srserrors.ErrCodeConfigInvalid, "parse config file "+path)
	}
	return nil
}

func applyEnv(v reflect.Value, lookup func(string) (string, bool)) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, lookup); err != nil {
				return err
			}
			continue
		}

		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		value, ok := lookup(name)
		if !ok || value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			return srserrors.ConfigInvalid(name, err.Error())
		}
	}
	return nil
}

// Set assigns value to the field at a dot separated YAML path.
func Set(cfg *Config, path, value string) error {
	v := reflect.ValueOf(cfg).Elem()
	parts := strings.Split(path, ".")
	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return srserrors.ConfigInvalid(path, "unknown setting")
		}
		if i == len(parts)-1 {
			if err := setField(field, value); err != nil {
				return srserrors.ConfigInvalid(path, err.Error())
			}
			return nil
		}
		if field.Kind() != reflect.Struct {
			return srserrors.ConfigInvalid(path, part+" is not a section")
		}
		v = field
	}
	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration %q", value)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		field.SetInt(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type %s", field.Type())
		}
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}
