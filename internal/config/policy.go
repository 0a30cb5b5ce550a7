package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sheikh-saqib/trading-ledger/internal/ledger"
)

// policyFile is the on-disk shape of the guard policy, e.g.
//
//	max_cash_balance: "1000000"
//	whole_shares_only: false
type policyFile struct {
	MaxCashBalance  string `yaml:"max_cash_balance"`
	WholeSharesOnly bool   `yaml:"whole_shares_only"`
}

// LoadPolicy reads the guard policy from a YAML file. An empty path returns the
// default policy: no balance cap, fractional shares allowed.
func LoadPolicy(path string) (ledger.Policy, error) {
	if path == "" {
		return ledger.Policy{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ledger.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML guard policy.
func ParsePolicy(data []byte) (ledger.Policy, error) {
	var raw policyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ledger.Policy{}, fmt.Errorf("failed to parse policy: %w", err)
	}

	policy := ledger.Policy{WholeSharesOnly: raw.WholeSharesOnly}
	if raw.MaxCashBalance != "" {
		max, err := decimal.NewFromString(raw.MaxCashBalance)
		if err != nil {
			return ledger.Policy{}, fmt.Errorf("invalid max_cash_balance %q: %w", raw.MaxCashBalance, err)
		}
		if max.IsNegative() {
			return ledger.Policy{}, fmt.Errorf("max_cash_balance must not be negative, got %s", max)
		}
		policy.MaxCashBalance = max
	}
	return policy, nil
}
