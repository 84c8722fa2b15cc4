package appcli

import (
	"flag"

	"github.com/design2deploy2025/inventory-management-sub000/internal/config"
)

// RuntimeConfig captures CLI flag inputs shared across commands.
type RuntimeConfig struct {
	ConfigPath string
	ServerURL  string
	Offline    bool
	LogLevel   string
}

// BindFlags attaches shared flags to provided FlagSet.
func (rc *RuntimeConfig) BindFlags(fs *flag.FlagSet) {
	if rc.ConfigPath == "" {
		rc.ConfigPath = config.DefaultPath()
	}
	fs.StringVar(&rc.ConfigPath, "config", rc.ConfigPath, "path to config file")
	fs.StringVar(&rc.ServerURL, "server", rc.ServerURL, "backend URL (overrides config)")
	fs.BoolVar(&rc.Offline, "offline", rc.Offline, "read the last cached snapshot, no network")
	fs.StringVar(&rc.LogLevel, "log-level", rc.LogLevel, "log level (debug, info, warn, error)")
}

// Options converts runtime config into app Options.
func (rc RuntimeConfig) Options() Options {
	return Options{
		ConfigPath: rc.ConfigPath,
		ServerURL:  rc.ServerURL,
		Offline:    rc.Offline,
		LogLevel:   rc.LogLevel,
	}
}
