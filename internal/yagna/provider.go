package yagna

import (
	"context"
	"slices"
	"strings"
)

const (
	// PricingLinear is the only pricing model this node configures.
	PricingLinear = "linear"
	// InitialPriceName is the coefficient name the provider uses for the
	// fixed start price.
	InitialPriceName = "Init price"
)

// ProviderCLI wraps the provider daemon's command line.
type ProviderCLI struct {
	cli
}

// NewProviderCLI builds a wrapper that runs binary with env.
func NewProviderCLI(binary string, env []string, opts ...CLIOption) *ProviderCLI {
	return &ProviderCLI{cli: newCLI(binary, env, opts)}
}

// Presets lists configured presets.
func (p *ProviderCLI) Presets(ctx context.Context) ([]Preset, error) {
	var presets []Preset
	if err := p.runJSON(ctx, &presets, "preset", "list", "--json"); err != nil {
		return nil, err
	}
	return presets, nil
}

// ActivePresets lists the names of active presets.
func (p *ProviderCLI) ActivePresets(ctx context.Context) ([]string, error) {
	var names []string
	if err := p.runJSON(ctx, &names, "preset", "active", "--json"); err != nil {
		return nil, err
	}
	return names, nil
}

// CreatePreset adds a new preset.
func (p *ProviderCLI) CreatePreset(ctx context.Context, preset Preset) error {
	args := []string{"preset", "create", "--no-interactive", "--preset-name", preset.Name}
	args = append(args, presetArgs(preset)...)
	_, err := p.output(ctx, args...)
	return err
}

// UpdatePreset rewrites an existing preset.
func (p *ProviderCLI) UpdatePreset(ctx context.Context, preset Preset) error {
	args := []string{"preset", "update", "--no-interactive", "--name", preset.Name}
	args = append(args, presetArgs(preset)...)
	_, err := p.output(ctx, args...)
	return err
}

// ActivatePreset makes a preset offered on the market.
func (p *ProviderCLI) ActivatePreset(ctx context.Context, name string) error {
	_, err := p.output(ctx, "preset", "activate", name)
	return err
}

// DeactivatePreset withdraws a preset from the market.
func (p *ProviderCLI) DeactivatePreset(ctx context.Context, name string) error {
	_, err := p.output(ctx, "preset", "deactivate", name)
	return err
}

// SetConfig updates the provider's global settings. Empty fields are left
// unchanged.
func (p *ProviderCLI) SetConfig(ctx context.Context, cfg ProviderConfig) error {
	args := []string{"config", "set"}
	if v := strings.TrimSpace(cfg.NodeName); v != "" {
		args = append(args, "--node-name", v)
	}
	if v := strings.TrimSpace(cfg.Subnet); v != "" {
		args = append(args, "--subnet", v)
	}
	if v := strings.TrimSpace(cfg.Account); v != "" {
		args = append(args, "--account", v)
	}
	if len(args) == 2 {
		return nil
	}
	_, err := p.output(ctx, args...)
	return err
}

func presetArgs(preset Preset) []string {
	pricing := preset.PricingModel
	if pricing == "" {
		pricing = PricingLinear
	}
	args := []string{"--exe-unit", preset.ExeUnit, "--pricing", pricing}
	names := make([]string, 0, len(preset.UsageCoeffs))
	for name := range preset.UsageCoeffs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		args = append(args, "--price", name+"="+preset.UsageCoeffs[name].String())
	}
	if !preset.InitialPrice.IsZero() {
		args = append(args, "--price", InitialPriceName+"="+preset.InitialPrice.String())
	}
	return args
}

// Matches reports whether two presets would be offered identically.
func (p Preset) Matches(other Preset) bool {
	if p.Name != other.Name || p.ExeUnit != other.ExeUnit || !p.InitialPrice.Equal(other.InitialPrice) {
		return false
	}
	if len(p.UsageCoeffs) != len(other.UsageCoeffs) {
		return false
	}
	for name, coeff := range p.UsageCoeffs {
		theirs, ok := other.UsageCoeffs[name]
		if !ok || !coeff.Equal(theirs) {
			return false
		}
	}
	return true
}
