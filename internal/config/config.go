package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, socket and bind address configuration.
type Paths struct {
	BinariesDir string   `toml:"binaries_dir"`
	DataDir     string   `toml:"data_dir"`
	ExeUnitDir  string   `toml:"exe_unit_dir"`
	LogDir      string   `toml:"log_dir"`
	StateDir    string   `toml:"state_dir"`
	SocketPath  string   `toml:"socket_path"`
	APIBind     string   `toml:"api_bind"`
	APIToken    string   `toml:"api_token"`
	APIOrigins  []string `toml:"api_origins"`
}

// Yagna contains settings for the network/identity/payment daemon.
type Yagna struct {
	APIURL         string `toml:"api_url"`
	GSBURL         string `toml:"gsb_url"`
	NetBindURL     string `toml:"net_bind_url"`
	RelayHost      string `toml:"relay_host"`
	NetworkGroup   string `toml:"network_group"`
	AppKey         string `toml:"app_key"`
	AutoconfAppKey string `toml:"autoconf_app_key"`
	PrivateKey     string `toml:"private_key"`
	SSLCertFile    string `toml:"ssl_cert_file"`
	Debug          bool   `toml:"debug"`
}

// Payment selects the payment network, driver and receiving account.
type Payment struct {
	Network string `toml:"network"`
	Driver  string `toml:"driver"`
	Account string `toml:"account"`
}

// Provider contains settings for the workload-provider daemon and its preset.
type Provider struct {
	PresetName             string  `toml:"preset_name"`
	ExeUnit                string  `toml:"exe_unit"`
	DurationPerSec         float64 `toml:"duration_per_sec"`
	GPUPerSec              float64 `toml:"gpu_per_sec"`
	PerRequest             float64 `toml:"per_request"`
	InitialPrice           float64 `toml:"initial_price"`
	MinAgreementExpiration string  `toml:"min_agreement_expiration"`
	NodeName               string  `toml:"node_name"`
	Subnet                 string  `toml:"subnet"`
	Debug                  bool    `toml:"debug"`
}

// Supervisor contains daemon shutdown and launch confirmation timing.
type Supervisor struct {
	StopTimeoutSeconds int `toml:"stop_timeout_seconds"`
	ProviderSettleMS   int `toml:"provider_settle_ms"`
}

// Readiness contains the readiness probe budget and fatal classification.
type Readiness struct {
	MaxAttempts      int   `toml:"max_attempts"`
	IntervalMS       int   `toml:"interval_ms"`
	FatalStatusCodes []int `toml:"fatal_status_codes"`
}

// Polling contains steady-state polling cadence and circuit breaker limits.
type Polling struct {
	ActivityIntervalMS     int `toml:"activity_interval_ms"`
	InvoiceIntervalMS      int `toml:"invoice_interval_ms"`
	BreakerFailures        int `toml:"breaker_failures"`
	BreakerCooldownSeconds int `toml:"breaker_cooldown_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobStarted     bool   `toml:"job_started"`
	JobFinished    bool   `toml:"job_finished"`
	Payments       bool   `toml:"payments"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for yanode.
//
// Configuration sections by subsystem:
//   - Paths: daemon binaries, data, logs, control socket and API bind
//   - Yagna: network daemon endpoints and credentials
//   - Payment: payment network, driver and receiving account
//   - Provider: provider daemon preset and pricing
//   - Supervisor: shutdown deadline and provider launch confirmation
//   - Readiness: readiness probe budget and fatal status codes
//   - Polling: activity and invoice polling cadence
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Yagna         Yagna         `toml:"yagna"`
	Payment       Payment       `toml:"payment"`
	Provider      Provider      `toml:"provider"`
	Supervisor    Supervisor    `toml:"supervisor"`
	Readiness     Readiness     `toml:"readiness"`
	Polling       Polling       `toml:"polling"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/yanode/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("yanode.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the node writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.ProviderDataDir(), c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// YagnaBinary returns the path of the network daemon executable.
func (c *Config) YagnaBinary() string {
	return filepath.Join(c.Paths.BinariesDir, "yagna")
}

// ProviderBinary returns the path of the provider daemon executable.
func (c *Config) ProviderBinary() string {
	return filepath.Join(c.Paths.BinariesDir, "ya-provider")
}

// ProviderDataDir is where the provider daemon keeps presets and agreements.
func (c *Config) ProviderDataDir() string {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.DataDir, "provider")
}

// HistoryPath returns the job history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "yanode.lock")
}

// PIDPath returns the pid file written by a running node.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "yanode.pid")
}

func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Supervisor.StopTimeoutSeconds) * time.Second
}

func (c *Config) ProviderSettle() time.Duration {
	return time.Duration(c.Supervisor.ProviderSettleMS) * time.Millisecond
}

func (c *Config) ReadinessInterval() time.Duration {
	return time.Duration(c.Readiness.IntervalMS) * time.Millisecond
}

func (c *Config) ActivityInterval() time.Duration {
	return time.Duration(c.Polling.ActivityIntervalMS) * time.Millisecond
}

func (c *Config) InvoiceInterval() time.Duration {
	return time.Duration(c.Polling.InvoiceIntervalMS) * time.Millisecond
}

func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Polling.BreakerCooldownSeconds) * time.Second
}

// PaymentAccount returns the configured receiving account, falling back to
// the node identity when none is set.
func (c *Config) PaymentAccount(identity string) string {
	if account := strings.TrimSpace(c.Payment.Account); account != "" {
		return account
	}
	return identity
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
