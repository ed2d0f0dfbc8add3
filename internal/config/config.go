// Package config loads facewatch settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Tracking sources.
const (
	SourceCamera = "camera"
	SourceIngest = "ingest"
)

// EnvPrefix is the prefix for environment overrides, e.g. FACEWATCH_SERVER_ADDR.
const EnvPrefix = "FACEWATCH"

type Server struct {
	Addr   string `mapstructure:"addr" yaml:"addr"`
	WebDir string `mapstructure:"web_dir" yaml:"web_dir"`
}

type Store struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type Tracking struct {
	Source        string  `mapstructure:"source" yaml:"source"`
	CameraID      int     `mapstructure:"camera_id" yaml:"camera_id"`
	FPS           int     `mapstructure:"fps" yaml:"fps"`
	Mirror        bool    `mapstructure:"mirror" yaml:"mirror"`
	MaxFaces      int     `mapstructure:"max_faces" yaml:"max_faces"`
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
}

type Plugins struct {
	Dir     string        `mapstructure:"dir" yaml:"dir"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MarshalYAML writes the timeout as a duration string; yaml.v3 reads those
// back into time.Duration but writes nanoseconds by default.
func (p Plugins) MarshalYAML() (interface{}, error) {
	return struct {
		Dir     string `yaml:"dir"`
		Timeout string `yaml:"timeout"`
	}{p.Dir, p.Timeout.String()}, nil
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type Tray struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Config is the root configuration.
type Config struct {
	Server   Server   `mapstructure:"server" yaml:"server"`
	Store    Store    `mapstructure:"store" yaml:"store"`
	Tracking Tracking `mapstructure:"tracking" yaml:"tracking"`
	Plugins  Plugins  `mapstructure:"plugins" yaml:"plugins"`
	Log      Log      `mapstructure:"log" yaml:"log"`
	Tray     Tray     `mapstructure:"tray" yaml:"tray"`
}

// DataDir returns ~/.facewatch, falling back to ./.facewatch when the home
// directory cannot be determined.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".facewatch"
	}
	return filepath.Join(home, ".facewatch")
}

// setDefaults registers default values on v.
func setDefaults(v *viper.Viper) {
	dataDir := DataDir()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.web_dir", "")
	v.SetDefault("store.path", filepath.Join(dataDir, "facewatch.db"))
	v.SetDefault("tracking.source", SourceCamera)
	v.SetDefault("tracking.camera_id", 0)
	v.SetDefault("tracking.fps", 30)
	v.SetDefault("tracking.mirror", true)
	v.SetDefault("tracking.max_faces", 1)
	v.SetDefault("tracking.min_confidence", 0.5)
	v.SetDefault("plugins.dir", filepath.Join(dataDir, "plugins"))
	v.SetDefault("plugins.timeout", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tray.enabled", false)
}

// Load reads configuration. If path is empty, facewatch.yaml is searched for
// in the working directory and the data directory; a missing file is not an
// error. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("facewatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DataDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Tracking.Source {
	case SourceCamera, SourceIngest:
	default:
		return fmt.Errorf("tracking.source must be %q or %q, got %q", SourceCamera, SourceIngest, c.Tracking.Source)
	}
	if c.Tracking.FPS <= 0 {
		return fmt.Errorf("tracking.fps must be positive, got %d", c.Tracking.FPS)
	}
	if c.Tracking.MaxFaces <= 0 {
		return fmt.Errorf("tracking.max_faces must be positive, got %d", c.Tracking.MaxFaces)
	}
	if c.Tracking.MinConfidence < 0 || c.Tracking.MinConfidence > 1 {
		return fmt.Errorf("tracking.min_confidence must be in [0,1], got %g", c.Tracking.MinConfidence)
	}
	if c.Plugins.Timeout <= 0 {
		return fmt.Errorf("plugins.timeout must be positive, got %s", c.Plugins.Timeout)
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
