package node_test

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"yanode/internal/job"
	"yanode/internal/node"
	"yanode/internal/testsupport"
	"yanode/internal/yagna"
)

type fakePresets struct {
	presets []yagna.Preset
	active  []string
	actions []string
	config  *yagna.ProviderConfig
}

func (f *fakePresets) Presets(context.Context) ([]yagna.Preset, error) { return f.presets, nil }

func (f *fakePresets) ActivePresets(context.Context) ([]string, error) { return f.active, nil }

func (f *fakePresets) CreatePreset(_ context.Context, p yagna.Preset) error {
	f.actions = append(f.actions, "create "+p.Name)
	return nil
}

func (f *fakePresets) UpdatePreset(_ context.Context, p yagna.Preset) error {
	f.actions = append(f.actions, "update "+p.Name)
	return nil
}

func (f *fakePresets) ActivatePreset(_ context.Context, name string) error {
	f.actions = append(f.actions, "activate "+name)
	return nil
}

func (f *fakePresets) DeactivatePreset(_ context.Context, name string) error {
	f.actions = append(f.actions, "deactivate "+name)
	return nil
}

func (f *fakePresets) SetConfig(_ context.Context, cfg yagna.ProviderConfig) error {
	f.config = &cfg
	return nil
}

func TestEnsurePreset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	want := node.DesiredPreset(cfg)
	stale := want
	stale.UsageCoeffs = map[string]decimal.Decimal{job.UsageDuration: decimal.RequireFromString("9")}

	cases := []struct {
		name    string
		presets []yagna.Preset
		active  []string
		actions []string
	}{
		{
			name:    "missing preset is created and activated",
			actions: []string{"create ai-runtime", "activate ai-runtime"},
		},
		{
			name:    "matching active preset is left alone",
			presets: []yagna.Preset{want},
			active:  []string{"ai-runtime"},
		},
		{
			name:    "stale pricing is updated",
			presets: []yagna.Preset{stale},
			active:  []string{"ai-runtime"},
			actions: []string{"update ai-runtime"},
		},
		{
			name:    "other presets are deactivated",
			presets: []yagna.Preset{want, {Name: "wasmtime"}},
			active:  []string{"wasmtime", "vm"},
			actions: []string{"activate ai-runtime", "deactivate wasmtime", "deactivate vm"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pm := &fakePresets{presets: tc.presets, active: tc.active}
			settings := yagna.ProviderConfig{NodeName: "worker-1"}
			if err := node.EnsurePreset(context.Background(), pm, want, settings, nil); err != nil {
				t.Fatalf("EnsurePreset: %v", err)
			}
			if !slices.Equal(pm.actions, tc.actions) {
				t.Fatalf("actions = %v, want %v", pm.actions, tc.actions)
			}
			if pm.config == nil || pm.config.NodeName != "worker-1" {
				t.Fatalf("provider config not applied: %+v", pm.config)
			}
		})
	}
}

type failingPresets struct {
	fakePresets
}

func (f *failingPresets) Presets(context.Context) ([]yagna.Preset, error) {
	return nil, fmt.Errorf("provider not installed")
}

func TestEnsurePresetListFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	err := node.EnsurePreset(context.Background(), &failingPresets{}, node.DesiredPreset(cfg), yagna.ProviderConfig{}, nil)
	if err == nil {
		t.Fatal("expected list failure to abort preset setup")
	}
}

func TestDesiredPresetPricing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Provider.DurationPerSec = 0.002
	p := node.DesiredPreset(cfg)
	if p.Name != "ai-runtime" || p.ExeUnit != "ai" || p.PricingModel != yagna.PricingLinear {
		t.Fatalf("unexpected preset %+v", p)
	}
	if !p.UsageCoeffs[job.UsageDuration].Equal(decimal.RequireFromString("0.002")) {
		t.Fatalf("duration coefficient = %s", p.UsageCoeffs[job.UsageDuration])
	}
}
