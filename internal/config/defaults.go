package config

const (
	defaultBinariesDir          = "~/.local/share/yanode/bin"
	defaultDataDir              = "~/.local/share/yanode/yagna"
	defaultExeUnitDir           = "~/.local/share/yanode/plugins"
	defaultLogDir               = "~/.local/share/yanode/logs"
	defaultStateDir             = "~/.local/share/yanode"
	defaultSocketName           = "yanode.sock"
	defaultAPIBind              = "127.0.0.1:7511"
	defaultYagnaAPIURL          = "http://127.0.0.1:12502"
	defaultGSBURL               = "tcp://127.0.0.1:12501"
	defaultNetBindURL           = "udp://0.0.0.0:12503"
	defaultNetworkGroup         = "testnet"
	defaultPaymentNetwork       = "holesky"
	defaultPaymentDriver        = "erc20"
	defaultPresetName           = "ai-runtime"
	defaultExeUnit              = "ai"
	defaultDurationPerSec       = 0.0001
	defaultGPUPerSec            = 0.0001
	defaultMinAgreementExpiry   = "30s"
	defaultStopTimeoutSeconds   = 30
	defaultProviderSettleMillis = 1000
	defaultReadinessAttempts    = 300
	defaultReadinessIntervalMS  = 300
	defaultActivityIntervalMS   = 1000
	defaultInvoiceIntervalMS    = 5000
	defaultBreakerFailures      = 5
	defaultBreakerCooldown      = 30
	defaultNtfyTimeout          = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BinariesDir: defaultBinariesDir,
			DataDir:     defaultDataDir,
			ExeUnitDir:  defaultExeUnitDir,
			LogDir:      defaultLogDir,
			StateDir:    defaultStateDir,
			APIBind:     defaultAPIBind,
			APIOrigins:  []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		Yagna: Yagna{
			APIURL:       defaultYagnaAPIURL,
			GSBURL:       defaultGSBURL,
			NetBindURL:   defaultNetBindURL,
			NetworkGroup: defaultNetworkGroup,
		},
		Payment: Payment{
			Network: defaultPaymentNetwork,
			Driver:  defaultPaymentDriver,
		},
		Provider: Provider{
			PresetName:             defaultPresetName,
			ExeUnit:                defaultExeUnit,
			DurationPerSec:         defaultDurationPerSec,
			GPUPerSec:              defaultGPUPerSec,
			MinAgreementExpiration: defaultMinAgreementExpiry,
		},
		Supervisor: Supervisor{
			StopTimeoutSeconds: defaultStopTimeoutSeconds,
			ProviderSettleMS:   defaultProviderSettleMillis,
		},
		Readiness: Readiness{
			MaxAttempts:      defaultReadinessAttempts,
			IntervalMS:       defaultReadinessIntervalMS,
			FatalStatusCodes: []int{401},
		},
		Polling: Polling{
			ActivityIntervalMS:     defaultActivityIntervalMS,
			InvoiceIntervalMS:      defaultInvoiceIntervalMS,
			BreakerFailures:        defaultBreakerFailures,
			BreakerCooldownSeconds: defaultBreakerCooldown,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			JobStarted:     true,
			JobFinished:    true,
			Payments:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
