package testsupport

import (
	"path/filepath"
	"testing"

	"yanode/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and fast timings. It applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BinariesDir = filepath.Join(base, "bin")
	cfgVal.Paths.DataDir = filepath.Join(base, "yagna")
	cfgVal.Paths.ExeUnitDir = filepath.Join(base, "plugins")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.SocketPath = filepath.Join(base, "state", "yanode.sock")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Yagna.AppKey = "test-app-key"
	cfgVal.Supervisor.StopTimeoutSeconds = 5
	cfgVal.Supervisor.ProviderSettleMS = 50
	cfgVal.Readiness.MaxAttempts = 50
	cfgVal.Readiness.IntervalMS = 10
	cfgVal.Polling.ActivityIntervalMS = 20
	cfgVal.Polling.InvoiceIntervalMS = 20
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithYagnaAPI points the config at a test API server.
func WithYagnaAPI(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Yagna.APIURL = url
	}
}

// WithNtfyTopic enables push notifications to url.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
