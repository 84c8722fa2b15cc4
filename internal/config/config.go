// ABOUTME: Configuration for the sellerdesk binaries: a yaml file under
// ABOUTME: ~/.sellerdesk with SELLERDESK_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SELLERDESK_SERVER_URL.
const EnvPrefix = "SELLERDESK"

// Config is the merged file and environment configuration.
type Config struct {
	Server    ServerConfig `mapstructure:"server"`
	Store     StoreConfig  `mapstructure:"store"`
	DeviceKey string       `mapstructure:"device_key"`
	Log       LogConfig    `mapstructure:"log"`
	Web       WebConfig    `mapstructure:"web"`
	Report    ReportConfig `mapstructure:"report"`
}

// ServerConfig locates the PocketBase backend.
type ServerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig is the local SQLite store holding the session and snapshots.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig sets the zap level and encoding (console or json).
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// WebConfig is the listen address of the dashboard API.
type WebConfig struct {
	Addr string `mapstructure:"addr"`
}

// ReportConfig tunes the sales report and stats output.
type ReportConfig struct {
	BestSellers int `mapstructure:"best_sellers"`
}

// DefaultPath returns the config file location. Tests override it.
var DefaultPath = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".sellerdesk", "config.yaml")
	}
	return filepath.Join(home, ".sellerdesk", "config.yaml")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.url", "")
	v.SetDefault("server.timeout", 15*time.Second)
	v.SetDefault("store.path", filepath.Join(filepath.Dir(path), "sellerdesk.db"))
	v.SetDefault("device_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("web.addr", "127.0.0.1:8787")
	v.SetDefault("report.best_sellers", 10)
	return v
}

// Load reads path, falling back to defaults when the file does not exist,
// and applies environment overrides.
func Load(path string) (*Config, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory, not a file", path)
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Store.Path = expandPath(cfg.Store.Path)
	cfg.Server.URL = strings.TrimSuffix(strings.TrimSpace(cfg.Server.URL), "/")
	return &cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("server.url", cfg.Server.URL)
	v.Set("server.timeout", cfg.Server.Timeout.String())
	v.Set("store.path", cfg.Store.Path)
	v.Set("device_key", cfg.DeviceKey)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.encoding", cfg.Log.Encoding)
	v.Set("web.addr", cfg.Web.Addr)
	v.Set("report.best_sellers", cfg.Report.BestSellers)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// Init creates a config file at path with a fresh device key. It refuses to
// overwrite an existing file.
func Init(path, serverURL, deviceKey string) (*Config, error) {
	if Exists(path) {
		return nil, fmt.Errorf("config already exists at %s", path)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Server.URL = strings.TrimSuffix(strings.TrimSpace(serverURL), "/")
	cfg.DeviceKey = deviceKey
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RequireServer fails when no backend URL is configured.
func (c *Config) RequireServer() error {
	if c.Server.URL == "" {
		return errors.New("no server configured\nRun 'sellerdesk init --server URL' or set SELLERDESK_SERVER_URL")
	}
	return nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
