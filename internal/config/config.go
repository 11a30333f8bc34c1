// Package config provides configuration loading for apkextract.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. APKEXTRACT_ADB_SERIAL.
const EnvPrefix = "APKEXTRACT"

// Config holds every tunable of the CLI.
type Config struct {
	ADB struct {
		Path   string `mapstructure:"path"`
		Serial string `mapstructure:"serial"`
	} `mapstructure:"adb"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Share struct {
		Dir     string `mapstructure:"dir"`
		Workers int    `mapstructure:"workers"`
	} `mapstructure:"share"`
	Inventory struct {
		Workers int `mapstructure:"workers"`
	} `mapstructure:"inventory"`
	Watch struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"watch"`
	Search struct {
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"search"`
	Logging struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"logging"`
}

// Dir returns the apkextract config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/apkextract if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "apkextract"), nil
}

// DataDir returns ~/.apkextract, home of the database, share staging area
// and daemon files.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".apkextract"), nil
}

// New returns a viper instance carrying the defaults and env binding.
// Flags are bound onto it by the caller before Load.
func New() (*viper.Viper, error) {
	data, err := DataDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("adb.path", "adb")
	v.SetDefault("adb.serial", "")
	v.SetDefault("database.path", filepath.Join(data, "apkextract.db"))
	v.SetDefault("share.dir", filepath.Join(data, "share"))
	v.SetDefault("share.workers", 4)
	v.SetDefault("inventory.workers", 8)
	v.SetDefault("watch.interval", 5*time.Second)
	v.SetDefault("search.debounce", 500*time.Millisecond)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// Load reads config.yaml into v and decodes it. An explicit file must
// exist; otherwise the config dir and the working directory are searched
// and a missing file leaves the defaults in place.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}
