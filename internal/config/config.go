// Package config loads assetkit configuration using Viper from a YAML file,
// environment variables and command-line flags.
//
// Environment variables use the ASSETKIT_ prefix and the
// ASSETKIT_<SECTION>_<KEY> pattern, e.g. ASSETKIT_ASSETS_PUBLIC_DIR or
// ASSETKIT_FINGERPRINT_MODE. Lists are comma separated.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/assetkit/internal/cache"
	"github.com/conneroisu/assetkit/internal/compiler"
	asseterrors "github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/spf13/viper"
)

type Config struct {
	Assets      AssetsConfig      `mapstructure:"assets" yaml:"assets" json:"assets"`
	Compilers   CompilersConfig   `mapstructure:"compilers" yaml:"compilers" json:"compilers"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint" yaml:"fingerprint" json:"fingerprint"`
	Log         LogConfig         `mapstructure:"log" yaml:"log" json:"log"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Watch       WatchConfig       `mapstructure:"watch" yaml:"watch" json:"watch"`
}

type AssetsConfig struct {
	SourceRoot string `mapstructure:"source_root" yaml:"source_root" json:"source_root"`
	PublicDir  string `mapstructure:"public_dir" yaml:"public_dir" json:"public_dir"`
	PublicURL  string `mapstructure:"public_url" yaml:"public_url" json:"public_url"`
	// IndexDir defaults to <public_dir>/.index when empty.
	IndexDir string `mapstructure:"index_dir" yaml:"index_dir" json:"index_dir"`
}

type CompilersConfig struct {
	CSS      []string `mapstructure:"css" yaml:"css" json:"css"`
	JS       []string `mapstructure:"js" yaml:"js" json:"js"`
	Annotate bool     `mapstructure:"annotate" yaml:"annotate" json:"annotate"`
}

type FingerprintConfig struct {
	Mode   string `mapstructure:"mode" yaml:"mode" json:"mode"`
	Length int    `mapstructure:"length" yaml:"length" json:"length"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host" json:"host"`
	Port int    `mapstructure:"port" yaml:"port" json:"port"`
}

type WatchConfig struct {
	// Paths defaults to the source root when empty.
	Paths    []string      `mapstructure:"paths" yaml:"paths" json:"paths"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

// Defaults for every configuration key.
var defaults = map[string]interface{}{
	"assets.source_root": ".",
	"assets.public_dir":  "public/assets",
	"assets.public_url":  "/assets",
	"assets.index_dir":   "",
	"compilers.css":      []string{"identity"},
	"compilers.js":       []string{"identity"},
	"compilers.annotate": false,
	"fingerprint.mode":   string(cache.ModeContent),
	"fingerprint.length": cache.DefaultFingerprintLength,
	"log.level":          "info",
	"log.format":         "text",
	"server.host":        "localhost",
	"server.port":        8080,
	"watch.paths":        []string{},
	"watch.debounce":     300 * time.Millisecond,
}

// SetDefaults registers the default of every key on v. Keys need a default
// for AutomaticEnv to reach them during Unmarshal.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// BindEnv enables ASSETKIT_<SECTION>_<KEY> environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("ASSETKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom applies defaults to v, decodes it and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// Stage lists from the environment arrive as a single comma separated
	// string.
	config.Compilers.CSS = splitList(config.Compilers.CSS)
	config.Compilers.JS = splitList(config.Compilers.JS)
	config.Watch.Paths = splitList(config.Watch.Paths)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

// WatchPaths returns the directories to watch for source changes.
func (c *Config) WatchPaths() []string {
	if len(c.Watch.Paths) > 0 {
		return c.Watch.Paths
	}

	return []string{c.Assets.SourceRoot}
}

// IndexDir returns the index directory with its default applied.
func (c *Config) IndexDir() string {
	if c.Assets.IndexDir != "" {
		return c.Assets.IndexDir
	}

	return filepath.Join(c.Assets.PublicDir, ".index")
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateAssetsConfig(&config.Assets); err != nil {
		return fmt.Errorf("assets config: %w", err)
	}

	if err := validateCompilersConfig(&config.Compilers); err != nil {
		return fmt.Errorf("compilers config: %w", err)
	}

	if err := validateFingerprintConfig(&config.Fingerprint); err != nil {
		return fmt.Errorf("fingerprint config: %w", err)
	}

	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	return nil
}

func validateAssetsConfig(config *AssetsConfig) error {
	if config.PublicDir == "" {
		return asseterrors.NewConfigError("CONFIG_PUBLIC_DIR", "public_dir is required")
	}

	for name, path := range map[string]string{
		"source_root": config.SourceRoot,
		"public_dir":  config.PublicDir,
	} {
		if err := validatePath(path); err != nil {
			return asseterrors.NewConfigError("CONFIG_PATH",
				fmt.Sprintf("invalid %s '%s': %v", name, path, err))
		}
	}
	if config.IndexDir != "" {
		if err := validatePath(config.IndexDir); err != nil {
			return asseterrors.NewConfigError("CONFIG_PATH",
				fmt.Sprintf("invalid index_dir '%s': %v", config.IndexDir, err))
		}
	}

	if err := validatePublicURL(config.PublicURL); err != nil {
		return asseterrors.NewConfigError("CONFIG_PUBLIC_URL",
			fmt.Sprintf("invalid public_url '%s': %v", config.PublicURL, err))
	}

	return nil
}

func validatePublicURL(raw string) error {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute path or an http(s) URL")
	}

	return nil
}

func validateCompilersConfig(config *CompilersConfig) error {
	for kind, names := range map[string][]string{"css": config.CSS, "js": config.JS} {
		for _, name := range names {
			if err := compiler.ValidateStageName(name); err != nil {
				return asseterrors.NewConfigError("CONFIG_STAGE",
					fmt.Sprintf("%s: %v (available: %s)", kind, err,
						strings.Join(compiler.StageNames(), ", ")))
			}
		}
	}

	return nil
}

func validateFingerprintConfig(config *FingerprintConfig) error {
	if _, err := cache.ParseMode(config.Mode); err != nil {
		return asseterrors.NewConfigError("CONFIG_FINGERPRINT_MODE", err.Error())
	}

	if config.Length < cache.MinFingerprintLength || config.Length > cache.MaxFingerprintLength {
		return asseterrors.NewConfigError("CONFIG_FINGERPRINT_LENGTH",
			fmt.Sprintf("length %d is not in valid range %d-%d",
				config.Length, cache.MinFingerprintLength, cache.MaxFingerprintLength))
	}

	return nil
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return asseterrors.NewConfigError("CONFIG_LOG_LEVEL", err.Error())
	}

	switch config.Format {
	case "text", "json":
		return nil
	default:
		return asseterrors.NewConfigError("CONFIG_LOG_FORMAT",
			fmt.Sprintf("unknown log format %q (text, json)", config.Format))
	}
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return asseterrors.NewConfigError("CONFIG_SERVER_PORT",
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port))
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return asseterrors.NewConfigError("CONFIG_SERVER_HOST",
					fmt.Sprintf("host contains dangerous character: %s", char))
			}
		}
	}

	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	if config.Debounce < 0 {
		return asseterrors.NewConfigError("CONFIG_WATCH_DEBOUNCE",
			fmt.Sprintf("debounce %s must not be negative", config.Debounce))
	}

	for _, path := range config.Paths {
		if err := validatePath(path); err != nil {
			return asseterrors.NewConfigError("CONFIG_PATH",
				fmt.Sprintf("invalid watch path '%s': %v", path, err))
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
