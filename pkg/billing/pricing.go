package billing

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Pricing maps each plan to the amount charged per period
type Pricing map[Plan]decimal.Decimal

// DefaultPlanPricing returns the built-in price list
func DefaultPlanPricing() Pricing {
	return Pricing{
		PlanMonthly:    decimal.NewFromInt(750),
		PlanYearly:     decimal.NewFromInt(7500),
		PlanEnterprise: decimal.Zero, // negotiated per contract
	}
}

// Price returns the amount charged for one period of plan
func (p Pricing) Price(plan Plan) decimal.Decimal {
	if price, ok := p[plan]; ok {
		return price
	}
	return decimal.Zero
}

// pricingFile is the on-disk layout of a pricing override:
//
//	plans:
//	  monthly: 750
//	  yearly: "7500.00"
type pricingFile struct {
	Plans map[string]string `yaml:"plans"`
}

// LoadPricing reads plan prices from a YAML file. Plans missing from the file
// keep their default price.
func LoadPricing(path string) (Pricing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}
	return ParsePricing(data)
}

// ParsePricing parses a YAML pricing document on top of DefaultPlanPricing
func ParsePricing(data []byte) (Pricing, error) {
	var file pricingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file: %w", err)
	}

	pricing := DefaultPlanPricing()
	for name, raw := range file.Plans {
		plan := Plan(name)
		if !plan.Valid() {
			return nil, fmt.Errorf("unknown plan %q in pricing file", name)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price for plan %s: %w", name, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("price for plan %s must not be negative", name)
		}
		pricing[plan] = price
	}
	return pricing, nil
}
