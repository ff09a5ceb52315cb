package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath     string
	Mode           string
	RPCURL         string
	CallbackURL    string
	XSRFToken      string
	CookieFile     string
	CookieName     string
	Timeout        string
	Retries        int
	ReceiptTimeout string
	PollInterval   string
	EnableOps      string
	NoStore        bool
}

type Settings struct {
	Mode           string
	RPCURL         string
	CallbackURL    string
	XSRFToken      string
	CookieFile     string
	CookieName     string
	Timeout        time.Duration
	Retries        int
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	EnableOps      []string
	StoreEnabled   bool
	StorePath      string
	StoreLockPath  string
}

type fileConfig struct {
	Mode     string `yaml:"mode"`
	RPCURL   string `yaml:"rpc_url"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	Callback struct {
		URL        string `yaml:"url"`
		XSRFToken  string `yaml:"xsrf_token"`
		CookieFile string `yaml:"cookie_file"`
		CookieName string `yaml:"cookie_name"`
	} `yaml:"callback"`
	Receipt struct {
		Timeout      string `yaml:"timeout"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"receipt"`
	EnableOps []string `yaml:"enable_ops"`
	Tokens struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"tokens"`
}

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

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.ReceiptTimeout <= 0 {
		settings.ReceiptTimeout = 3 * time.Minute
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	storePath, lockPath, err := defaultStorePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Mode:           "standalone",
		CookieName:     "_xsrf",
		Timeout:        10 * time.Second,
		Retries:        2,
		ReceiptTimeout: 3 * time.Minute,
		PollInterval:   2 * time.Second,
		StoreEnabled:   true,
		StorePath:      storePath,
		StoreLockPath:  lockPath,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "walletbridge", "config.yaml"), nil
}

func defaultStorePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "walletbridge")
	return filepath.Join(dir, "tokens.db"), filepath.Join(dir, "tokens.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Mode != "" {
		settings.Mode = strings.ToLower(cfg.Mode)
	}
	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Callback.URL != "" {
		settings.CallbackURL = cfg.Callback.URL
	}
	if cfg.Callback.XSRFToken != "" {
		settings.XSRFToken = cfg.Callback.XSRFToken
	}
	if cfg.Callback.CookieFile != "" {
		settings.CookieFile = cfg.Callback.CookieFile
	}
	if cfg.Callback.CookieName != "" {
		settings.CookieName = cfg.Callback.CookieName
	}
	if cfg.Receipt.Timeout != "" {
		d, err := time.ParseDuration(cfg.Receipt.Timeout)
		if err != nil {
			return fmt.Errorf("config receipt.timeout: %w", err)
		}
		settings.ReceiptTimeout = d
	}
	if cfg.Receipt.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Receipt.PollInterval)
		if err != nil {
			return fmt.Errorf("config receipt.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if len(cfg.EnableOps) > 0 {
		settings.EnableOps = cfg.EnableOps
	}
	if cfg.Tokens.Enabled != nil {
		settings.StoreEnabled = *cfg.Tokens.Enabled
	}
	if cfg.Tokens.Path != "" {
		settings.StorePath = cfg.Tokens.Path
	}
	if cfg.Tokens.LockPath != "" {
		settings.StoreLockPath = cfg.Tokens.LockPath
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("WALLETBRIDGE_MODE"); v != "" {
		settings.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("WALLETBRIDGE_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("WALLETBRIDGE_CALLBACK_URL"); v != "" {
		settings.CallbackURL = v
	}
	if v := os.Getenv("WALLETBRIDGE_XSRF_TOKEN"); v != "" {
		settings.XSRFToken = v
	}
	if v := os.Getenv("WALLETBRIDGE_COOKIE_FILE"); v != "" {
		settings.CookieFile = v
	}
	if v := os.Getenv("WALLETBRIDGE_COOKIE_NAME"); v != "" {
		settings.CookieName = v
	}
	if v := os.Getenv("WALLETBRIDGE_ENABLE_OPS"); v != "" {
		settings.EnableOps = splitList(v)
	}
	if v := os.Getenv("WALLETBRIDGE_NO_STORE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil && parsed {
			settings.StoreEnabled = false
		}
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.Mode != "" {
		settings.Mode = strings.ToLower(flags.Mode)
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.CallbackURL != "" {
		settings.CallbackURL = flags.CallbackURL
	}
	if flags.XSRFToken != "" {
		settings.XSRFToken = flags.XSRFToken
	}
	if flags.CookieFile != "" {
		settings.CookieFile = flags.CookieFile
	}
	if flags.CookieName != "" {
		settings.CookieName = flags.CookieName
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.ReceiptTimeout != "" {
		d, err := time.ParseDuration(flags.ReceiptTimeout)
		if err != nil {
			return fmt.Errorf("parse --receipt-timeout: %w", err)
		}
		settings.ReceiptTimeout = d
	}
	if flags.PollInterval != "" {
		d, err := time.ParseDuration(flags.PollInterval)
		if err != nil {
			return fmt.Errorf("parse --poll-interval: %w", err)
		}
		settings.PollInterval = d
	}
	if flags.EnableOps != "" {
		settings.EnableOps = splitList(flags.EnableOps)
	}
	if flags.NoStore {
		settings.StoreEnabled = false
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
