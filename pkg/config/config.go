// Package config loads client settings through viper: defaults, a YAML file, LENIN_*
// environment variables and bound command line flags, in increasing priority.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/lenin/pkg/redisstream"
)

// AppName is the viper environment prefix and the config directory name.
const AppName = "lenin"

type Config struct {
	APIURL           string               `mapstructure:"api_url" yaml:"api_url"`
	WSPath           string               `mapstructure:"ws_path" yaml:"ws_path"`
	ReconnectDelay   time.Duration        `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	RefreshMargin    time.Duration        `mapstructure:"refresh_margin" yaml:"refresh_margin"`
	NoticeTTL        time.Duration        `mapstructure:"notice_ttl" yaml:"notice_ttl"`
	ContactsPageSize int                  `mapstructure:"contacts_page_size" yaml:"contacts_page_size"`
	ScrollThreshold  float64              `mapstructure:"scroll_threshold" yaml:"scroll_threshold"`
	StorePath        string               `mapstructure:"store_path" yaml:"store_path"`
	Redis            redisstream.Settings `mapstructure:"redis" yaml:"redis"`
}

func Default() Config {
	return Config{
		APIURL:           "http://localhost:8080",
		WSPath:           "/ws/websocket",
		ReconnectDelay:   5 * time.Second,
		RefreshMargin:    10 * time.Second,
		NoticeTTL:        2 * time.Second,
		ContactsPageSize: 10,
		ScrollThreshold:  50,
		Redis:            redisstream.DefaultSettings(),
	}
}

var durationKeys = []string{"reconnect_delay", "refresh_margin", "notice_ttl"}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("api_url", d.APIURL)
	v.SetDefault("ws_path", d.WSPath)
	v.SetDefault("reconnect_delay", d.ReconnectDelay)
	v.SetDefault("refresh_margin", d.RefreshMargin)
	v.SetDefault("notice_ttl", d.NoticeTTL)
	v.SetDefault("contacts_page_size", d.ContactsPageSize)
	v.SetDefault("scroll_threshold", d.ScrollThreshold)
	v.SetDefault("store_path", d.StorePath)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.group", d.Redis.Group)
	v.SetDefault("redis.consumer", d.Redis.Consumer)
}

// DefaultPath is $XDG_CONFIG_HOME/lenin/config.yaml or its platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

// DefaultStorePath is where the CLI keeps its session between runs.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, "session.db")
}

// ReadFile makes path the config file of v and reads it.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	return nil
}

// Load reads the YAML file at path (skipped when path is empty) into a fresh viper
// instance and decodes it with FromViper.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		if err := ReadFile(v, path); err != nil {
			return Config{}, err
		}
	}
	return FromViper(v)
}

// FromViper decodes the settings held by v. Environment variables are LENIN_ followed by
// the upper-cased key, with nested keys joined by an underscore (LENIN_REDIS_ADDR).
func FromViper(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := applySeconds(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.expandPaths(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySeconds accepts <key>_seconds as a whole number of seconds for a duration key
// that is not itself set in the environment.
func applySeconds(v *viper.Viper) error {
	for _, k := range durationKeys {
		if _, ok := os.LookupEnv(strings.ToUpper(AppName + "_" + k)); ok {
			continue
		}
		if !v.IsSet(k + "_seconds") {
			continue
		}
		raw := v.GetString(k + "_seconds")
		seconds, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return errors.Wrapf(err, "%s_seconds: %q is not a number of seconds", k, raw)
		}
		v.Set(k, time.Duration(seconds)*time.Second)
	}
	return nil
}

// expandPaths resolves a leading ~ in the store path.
func (c *Config) expandPaths() error {
	if c.StorePath == "" || c.StorePath == "memory" {
		return nil
	}
	expanded, err := homedir.Expand(c.StorePath)
	if err != nil {
		return errors.Wrapf(err, "expand %s", c.StorePath)
	}
	c.StorePath = expanded
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New("api_url is required")
	}
	if c.ReconnectDelay <= 0 {
		return errors.Errorf("reconnect_delay must be positive, got %s", c.ReconnectDelay)
	}
	if c.RefreshMargin < 0 {
		return errors.Errorf("refresh_margin must not be negative, got %s", c.RefreshMargin)
	}
	if c.NoticeTTL <= 0 {
		return errors.Errorf("notice_ttl must be positive, got %s", c.NoticeTTL)
	}
	if c.ContactsPageSize <= 0 {
		return errors.Errorf("contacts_page_size must be positive, got %d", c.ContactsPageSize)
	}
	return nil
}
