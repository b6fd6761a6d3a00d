package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/registry"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Timeout        string
	Retries        int
	GatewayURL     string
	NoCache        bool
	EnableCommands string
}

type Settings struct {
	OutputMode     string
	Timeout        time.Duration
	Retries        int
	GatewayURL     string
	GatewayAPIKey  string
	CacheEnabled   bool
	CachePath      string
	CacheLockPath  string
	RPCURL         string
	KeySource      string
	EnableCommands []string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Gateway struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"gateway"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Wallet struct {
		RPCURL    string `yaml:"rpc_url"`
		KeySource string `yaml:"key_source"`
	} `yaml:"wallet"`
}

const (
	EnvGatewayURL    = "CROSSPAY_GATEWAY_URL"
	EnvGatewayAPIKey = "CROSSPAY_GATEWAY_API_KEY"
)

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.GatewayURL == "" {
		settings.GatewayURL = registry.GatewayBaseURL
	}
	if !registry.IsAllowedGatewayURL(settings.GatewayURL) {
		return Settings{}, clierr.New(clierr.ClassValidation, fmt.Sprintf("gateway url not allowed: %s", settings.GatewayURL))
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:    "json",
		Timeout:       10 * time.Second,
		Retries:       2,
		GatewayURL:    registry.GatewayBaseURL,
		CacheEnabled:  true,
		CachePath:     cachePath,
		CacheLockPath: lockPath,
		KeySource:     "auto",
	}, nil
}

func defaultCachePaths() (string, string, error) {
	base := strings.TrimSpace(os.Getenv("XDG_CACHE_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "crosspay")
	return filepath.Join(dir, "catalog.db"), filepath.Join(dir, "catalog.lock"), nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return strings.TrimSpace(input), nil
	}
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", nil
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "crosspay", "config.yaml"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(strings.TrimSpace(cfg.Output))
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("parse timeout in config file: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Gateway.URL != "" {
		settings.GatewayURL = strings.TrimSpace(cfg.Gateway.URL)
	}
	if cfg.Gateway.APIKey != "" {
		settings.GatewayAPIKey = strings.TrimSpace(cfg.Gateway.APIKey)
	}
	if cfg.Gateway.APIKeyEnv != "" {
		if v := strings.TrimSpace(os.Getenv(cfg.Gateway.APIKeyEnv)); v != "" {
			settings.GatewayAPIKey = v
		}
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Wallet.RPCURL != "" {
		settings.RPCURL = strings.TrimSpace(cfg.Wallet.RPCURL)
	}
	if cfg.Wallet.KeySource != "" {
		settings.KeySource = strings.ToLower(strings.TrimSpace(cfg.Wallet.KeySource))
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := strings.TrimSpace(os.Getenv(EnvGatewayURL)); v != "" {
		settings.GatewayURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGatewayAPIKey)); v != "" {
		settings.GatewayAPIKey = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return clierr.New(clierr.ClassValidation, "use either --json or --plain, not both")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Timeout) != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return clierr.Wrap(clierr.ClassValidation, "parse --timeout", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if strings.TrimSpace(flags.GatewayURL) != "" {
		settings.GatewayURL = strings.TrimSpace(flags.GatewayURL)
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitCSV(flags.EnableCommands)
	}
	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		norm := strings.TrimSpace(part)
		if norm != "" {
			out = append(out, norm)
		}
	}
	return out
}
