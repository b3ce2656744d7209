package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// PaymentNetworks lists the payment networks the provider daemon accepts.
var PaymentNetworks = []string{"mainnet", "holesky", "goerli", "polygon", "mumbai", "rinkeby"}

// PaymentDrivers lists the supported payment drivers.
var PaymentDrivers = []string{"erc20", "zksync"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateYagna(); err != nil {
		return err
	}
	if err := c.validatePayment(); err != nil {
		return err
	}
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateYagna() error {
	u, err := url.Parse(c.Yagna.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("yagna.api_url must be an absolute URL, got %q", c.Yagna.APIURL)
	}
	return nil
}

func (c *Config) validatePayment() error {
	if !slices.Contains(PaymentNetworks, c.Payment.Network) {
		return fmt.Errorf("payment.network %q is not one of %v", c.Payment.Network, PaymentNetworks)
	}
	if !slices.Contains(PaymentDrivers, c.Payment.Driver) {
		return fmt.Errorf("payment.driver %q is not one of %v", c.Payment.Driver, PaymentDrivers)
	}
	return nil
}

func (c *Config) validateProvider() error {
	for name, value := range map[string]float64{
		"provider.duration_per_sec": c.Provider.DurationPerSec,
		"provider.gpu_per_sec":      c.Provider.GPUPerSec,
		"provider.per_request":      c.Provider.PerRequest,
		"provider.initial_price":    c.Provider.InitialPrice,
	} {
		if value < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if _, err := time.ParseDuration(c.Provider.MinAgreementExpiration); err != nil {
		return fmt.Errorf("provider.min_agreement_expiration: %w", err)
	}
	return nil
}

func (c *Config) validateTiming() error {
	switch {
	case c.Supervisor.StopTimeoutSeconds <= 0:
		return errors.New("supervisor.stop_timeout_seconds must be positive")
	case c.Supervisor.ProviderSettleMS < 0:
		return errors.New("supervisor.provider_settle_ms must not be negative")
	case c.Readiness.MaxAttempts <= 0:
		return errors.New("readiness.max_attempts must be positive")
	case c.Readiness.IntervalMS <= 0:
		return errors.New("readiness.interval_ms must be positive")
	case c.Polling.ActivityIntervalMS <= 0:
		return errors.New("polling.activity_interval_ms must be positive")
	case c.Polling.InvoiceIntervalMS <= 0:
		return errors.New("polling.invoice_interval_ms must be positive")
	case c.Polling.BreakerFailures <= 0:
		return errors.New("polling.breaker_failures must be positive")
	}
	for _, code := range c.Readiness.FatalStatusCodes {
		if code < 400 || code > 599 {
			return fmt.Errorf("readiness.fatal_status_codes: %d is not an HTTP error status", code)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
