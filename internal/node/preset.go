package node

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"yanode/internal/config"
	"yanode/internal/job"
	"yanode/internal/logging"
	"yanode/internal/yagna"
)

// PresetManager is the part of the provider CLI used to configure offers.
type PresetManager interface {
	Presets(ctx context.Context) ([]yagna.Preset, error)
	ActivePresets(ctx context.Context) ([]string, error)
	CreatePreset(ctx context.Context, preset yagna.Preset) error
	UpdatePreset(ctx context.Context, preset yagna.Preset) error
	ActivatePreset(ctx context.Context, name string) error
	DeactivatePreset(ctx context.Context, name string) error
	SetConfig(ctx context.Context, cfg yagna.ProviderConfig) error
}

// DesiredPreset builds the preset the configuration asks for.
func DesiredPreset(cfg *config.Config) yagna.Preset {
	return yagna.Preset{
		Name:         cfg.Provider.PresetName,
		ExeUnit:      cfg.Provider.ExeUnit,
		PricingModel: yagna.PricingLinear,
		InitialPrice: decimal.NewFromFloat(cfg.Provider.InitialPrice),
		UsageCoeffs: map[string]decimal.Decimal{
			job.UsageDuration: decimal.NewFromFloat(cfg.Provider.DurationPerSec),
			job.UsageGPU:      decimal.NewFromFloat(cfg.Provider.GPUPerSec),
			job.UsageRequests: decimal.NewFromFloat(cfg.Provider.PerRequest),
		},
	}
}

// PresetPrice converts a preset into a job price with usage counters in
// name order.
func PresetPrice(p yagna.Preset) job.Price {
	names := slices.Sorted(maps.Keys(p.UsageCoeffs))
	coeffs := make([]decimal.Decimal, 0, len(names))
	for _, name := range names {
		coeffs = append(coeffs, p.UsageCoeffs[name])
	}
	return job.Price{UsageVector: names, Coefficients: coeffs, Fixed: p.InitialPrice}
}

// EnsurePreset makes want exist with the requested pricing, activates it and
// deactivates every other active preset. provider settings are applied last.
func EnsurePreset(ctx context.Context, pm PresetManager, want yagna.Preset, settings yagna.ProviderConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	presets, err := pm.Presets(ctx)
	if err != nil {
		return fmt.Errorf("list presets: %w", err)
	}
	idx := slices.IndexFunc(presets, func(p yagna.Preset) bool { return p.Name == want.Name })
	switch {
	case idx < 0:
		if err := pm.CreatePreset(ctx, want); err != nil {
			return fmt.Errorf("create preset %s: %w", want.Name, err)
		}
		logger.Info("preset created", logging.String("preset", want.Name))
	case !presets[idx].Matches(want):
		if err := pm.UpdatePreset(ctx, want); err != nil {
			return fmt.Errorf("update preset %s: %w", want.Name, err)
		}
		logger.Info("preset updated", logging.String("preset", want.Name))
	}

	active, err := pm.ActivePresets(ctx)
	if err != nil {
		return fmt.Errorf("list active presets: %w", err)
	}
	if !slices.Contains(active, want.Name) {
		if err := pm.ActivatePreset(ctx, want.Name); err != nil {
			return fmt.Errorf("activate preset %s: %w", want.Name, err)
		}
	}
	for _, name := range active {
		if name == want.Name {
			continue
		}
		if err := pm.DeactivatePreset(ctx, name); err != nil {
			return fmt.Errorf("deactivate preset %s: %w", name, err)
		}
		logger.Info("preset deactivated", logging.String("preset", name))
	}

	if err := pm.SetConfig(ctx, settings); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}
	return nil
}
