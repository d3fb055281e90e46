package instance

import "github.com/matheus3301/tgfilter/internal/config"

const DefaultName = "main"

// Resolve determines the active instance name using precedence:
// 1. flagOverride (--instance flag)
// 2. config.toml default_instance (or TGF_DEFAULT_INSTANCE)
// 3. "main"
func Resolve(flagOverride string) string {
	return ResolveWith(flagOverride, ConfigPath())
}

// ResolveWith is Resolve reading the config file at configPath.
func ResolveWith(flagOverride, configPath string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(configPath)
	if err == nil && cfg.DefaultInstance != "" {
		return cfg.DefaultInstance
	}
	return DefaultName
}
