package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeYagna()
	c.normalizePayment()
	c.normalizeProvider()
	c.normalizeReadiness()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	fields := []struct {
		name  string
		value *string
	}{
		{"paths.binaries_dir", &c.Paths.BinariesDir},
		{"paths.data_dir", &c.Paths.DataDir},
		{"paths.exe_unit_dir", &c.Paths.ExeUnitDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.socket_path", &c.Paths.SocketPath},
	}
	for _, field := range fields {
		if *field.value, err = expandPath(strings.TrimSpace(*field.value)); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	if c.Paths.StateDir == "" {
		if c.Paths.StateDir, err = expandPath(defaultStateDir); err != nil {
			return fmt.Errorf("paths.state_dir: %w", err)
		}
	}
	if c.Paths.SocketPath == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.StateDir, defaultSocketName)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = envFallback(c.Paths.APIToken, "YANODE_API_TOKEN")
	origins := c.Paths.APIOrigins[:0]
	for _, origin := range c.Paths.APIOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.Paths.APIOrigins = origins
	return nil
}

func (c *Config) normalizeYagna() {
	c.Yagna.APIURL = strings.TrimRight(strings.TrimSpace(c.Yagna.APIURL), "/")
	if c.Yagna.APIURL == "" {
		c.Yagna.APIURL = defaultYagnaAPIURL
	}
	c.Yagna.GSBURL = strings.TrimSpace(c.Yagna.GSBURL)
	if c.Yagna.GSBURL == "" {
		c.Yagna.GSBURL = defaultGSBURL
	}
	c.Yagna.NetBindURL = strings.TrimSpace(c.Yagna.NetBindURL)
	c.Yagna.RelayHost = strings.TrimSpace(c.Yagna.RelayHost)
	c.Yagna.NetworkGroup = strings.TrimSpace(c.Yagna.NetworkGroup)
	c.Yagna.AppKey = envFallback(c.Yagna.AppKey, "YAGNA_APPKEY")
	c.Yagna.AutoconfAppKey = envFallback(c.Yagna.AutoconfAppKey, "YAGNA_AUTOCONF_APPKEY")
	c.Yagna.PrivateKey = envFallback(c.Yagna.PrivateKey, "YAGNA_AUTOCONF_ID_SECRET")
	c.Yagna.SSLCertFile = strings.TrimSpace(c.Yagna.SSLCertFile)
}

func (c *Config) normalizePayment() {
	c.Payment.Network = strings.ToLower(strings.TrimSpace(c.Payment.Network))
	if c.Payment.Network == "" {
		c.Payment.Network = defaultPaymentNetwork
	}
	c.Payment.Driver = strings.ToLower(strings.TrimSpace(c.Payment.Driver))
	if c.Payment.Driver == "" {
		c.Payment.Driver = defaultPaymentDriver
	}
	c.Payment.Account = strings.TrimSpace(c.Payment.Account)
}

func (c *Config) normalizeProvider() {
	c.Provider.PresetName = strings.TrimSpace(c.Provider.PresetName)
	if c.Provider.PresetName == "" {
		c.Provider.PresetName = defaultPresetName
	}
	c.Provider.ExeUnit = strings.TrimSpace(c.Provider.ExeUnit)
	if c.Provider.ExeUnit == "" {
		c.Provider.ExeUnit = defaultExeUnit
	}
	c.Provider.MinAgreementExpiration = strings.TrimSpace(c.Provider.MinAgreementExpiration)
	if c.Provider.MinAgreementExpiration == "" {
		c.Provider.MinAgreementExpiration = defaultMinAgreementExpiry
	}
	c.Provider.NodeName = strings.TrimSpace(c.Provider.NodeName)
	c.Provider.Subnet = strings.TrimSpace(c.Provider.Subnet)
}

func (c *Config) normalizeReadiness() {
	if len(c.Readiness.FatalStatusCodes) == 0 {
		c.Readiness.FatalStatusCodes = []int{401}
	}
	codes := slices.Clone(c.Readiness.FatalStatusCodes)
	slices.Sort(codes)
	c.Readiness.FatalStatusCodes = slices.Compact(codes)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}
