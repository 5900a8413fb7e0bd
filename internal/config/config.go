// Package config provides configuration management for cortexmotion
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/normanking/cortexmotion/internal/engine"
	"github.com/normanking/cortexmotion/internal/logging"
	"github.com/normanking/cortexmotion/internal/motion"
	"github.com/normanking/cortexmotion/internal/noise"
	"github.com/normanking/cortexmotion/internal/trigger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. CORTEXMOTION_ENGINE_FPS.
const EnvPrefix = "CORTEXMOTION"

// Config holds all application configuration
type Config struct {
	Rig     RigConfig          `mapstructure:"rig"`
	Noise   NoiseConfig        `mapstructure:"noise"`
	Blink   motion.BlinkConfig `mapstructure:"blink"`
	Shake   motion.ShakeConfig `mapstructure:"shake"`
	Idle    motion.IdleConfig  `mapstructure:"idle"`
	Mouth   motion.MouthConfig `mapstructure:"mouth"`
	Engine  engine.Config      `mapstructure:"engine"`
	Trigger trigger.Config     `mapstructure:"trigger"`
	Logging logging.Config     `mapstructure:"logging"`
}

// RigConfig selects the parameter set.
type RigConfig struct {
	// Yaml rig file; empty uses the standard Cubism parameters.
	DefinitionsFile string `mapstructure:"definitions_file"`
}

// NoiseConfig selects the noise field. Both values are fixed at startup.
type NoiseConfig struct {
	Backend noise.Backend `mapstructure:"backend"`
	// Permutation seed for the field; 0 draws one at startup.
	Seed int64 `mapstructure:"seed"`
}

// DefaultConfig returns the tuned defaults for every section
func DefaultConfig() *Config {
	return &Config{
		Noise: NoiseConfig{
			Backend: noise.BackendPerlin,
		},
		Blink:   motion.DefaultBlinkConfig(),
		Shake:   motion.DefaultShakeConfig(),
		Idle:    motion.DefaultIdleConfig(),
		Mouth:   motion.DefaultMouthConfig(),
		Engine:  engine.DefaultConfig(),
		Trigger: trigger.DefaultConfig(),
		Logging: logging.DefaultConfig(),
	}
}

// Tuning returns the runtime-mutable generator sections.
func (c *Config) Tuning() engine.Tuning {
	return engine.Tuning{Blink: c.Blink, Shake: c.Shake, Idle: c.Idle, Mouth: c.Mouth}
}

// Validate clamps every section into a usable state and returns the
// corrections made. Invalid values are never an error.
func (c *Config) Validate() []motion.Correction {
	var cs []motion.Correction
	switch c.Noise.Backend {
	case noise.BackendPerlin, noise.BackendSimplex:
	default:
		cs = append(cs, motion.Correction{Field: "noise.backend", Old: string(c.Noise.Backend), New: string(noise.BackendPerlin)})
		c.Noise.Backend = noise.BackendPerlin
	}
	cs = append(cs, c.Blink.Validate()...)
	cs = append(cs, c.Shake.Validate()...)
	cs = append(cs, c.Idle.Validate()...)
	cs = append(cs, c.Mouth.Validate()...)
	cs = append(cs, c.Engine.Validate()...)
	if c.Trigger.StreamHz < 0 {
		cs = append(cs, motion.Correction{Field: "trigger.stream_hz", Old: fmt.Sprint(c.Trigger.StreamHz), New: "0"})
		c.Trigger.StreamHz = 0
	}
	return cs
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cortexmotion"), nil
}

// Loader reads configuration from a yaml file and the environment.
type Loader struct {
	v    *viper.Viper
	path string

	mu      sync.Mutex
	watched bool
}

// NewLoader creates a loader. An empty path searches config.yaml in the
// config directory and the working directory.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range settings(DefaultConfig()).(map[string]any) {
		v.SetDefault(key, value)
	}
	return &Loader{v: v, path: path}
}

// Load reads the file if present and decodes it over the defaults. A missing
// file is not an error unless a path was given explicitly.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Idle.ApplyStyle()
	return cfg, nil
}

// ConfigFile returns the file in use, empty when running on defaults.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls fn with the freshly decoded configuration every time the file
// changes. It does nothing when no file is in use.
func (l *Loader) Watch(fn func(*Config, error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watched || l.v.ConfigFileUsed() == "" {
		return
	}
	l.watched = true
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(l.decode())
	})
	l.v.WatchConfig()
}

// Load reads configuration from path, or from the default locations when
// path is empty.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes cfg as yaml to path, or to config.yaml in the config
// directory when path is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		dir, err := GetConfigDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	for key, value := range settings(cfg).(map[string]any) {
		v.Set(key, value)
	}
	return v.WriteConfigAs(path)
}

// Marshal renders cfg as yaml in the layout Load reads.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(settings(cfg))
}

// settings converts v into plain maps and slices keyed by mapstructure tags,
// so the written file reads back through Unmarshal. Fixed-size float arrays
// such as vectors are kept as lists.
func settings(v any) any {
	return settingsValue(reflect.ValueOf(v))
}

func settingsValue(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return settingsValue(rv.Elem())
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			key := f.Tag.Get("mapstructure")
			if key == "" || key == "-" {
				key = strings.ToLower(f.Name)
			}
			out[key] = settingsValue(rv.Field(i))
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = settingsValue(rv.Index(i))
		}
		return out
	default:
		return rv.Interface()
	}
}
