package job

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Usage counter names shared with the provider daemon's usage vector.
const (
	UsageDuration = "golem.usage.duration_sec"
	UsageCPU      = "golem.usage.cpu_sec"
	UsageGPU      = "golem.usage.gpu-sec"
	UsageRequests = "ai-runtime.requests"
)

// Price is a linear pricing model: Fixed plus one coefficient per usage
// counter named in UsageVector.
type Price struct {
	UsageVector  []string          `json:"usageVector"`
	Coefficients []decimal.Decimal `json:"coefficients"`
	Fixed        decimal.Decimal   `json:"fixed"`
}

func (p Price) clone() Price {
	return Price{
		UsageVector:  slices.Clone(p.UsageVector),
		Coefficients: slices.Clone(p.Coefficients),
		Fixed:        p.Fixed,
	}
}

// Coefficient returns the per-unit price for a usage counter.
func (p Price) Coefficient(name string) (decimal.Decimal, bool) {
	i := slices.Index(p.UsageVector, name)
	if i < 0 || i >= len(p.Coefficients) {
		return decimal.Zero, false
	}
	return p.Coefficients[i], true
}

// Reward prices a usage vector aligned with UsageVector.
func (p Price) Reward(usage []float64) decimal.Decimal {
	total := p.Fixed
	for i, coeff := range p.Coefficients {
		if i >= len(usage) {
			break
		}
		total = total.Add(coeff.Mul(decimal.NewFromFloat(usage[i])))
	}
	return total
}

func (p Price) Equal(other Price) bool {
	if !slices.Equal(p.UsageVector, other.UsageVector) || !p.Fixed.Equal(other.Fixed) {
		return false
	}
	return slices.EqualFunc(p.Coefficients, other.Coefficients, decimal.Decimal.Equal)
}
