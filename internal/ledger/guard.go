package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

// Policy holds the configurable limits enforced by Guard.
type Policy struct {
	// MaxCashBalance caps the cash an account may hold. Zero disables the cap.
	MaxCashBalance decimal.Decimal
	// WholeSharesOnly rejects fractional trade quantities.
	WholeSharesOnly bool
}

// Guard approves mutations before they are committed. It has no side effects.
type Guard struct {
	policy Policy
}

func NewGuard(policy Policy) Guard {
	return Guard{policy: policy}
}

func (g Guard) Policy() Policy {
	return g.policy
}

// CheckDebit fails when taking amount would leave the account below zero.
func CheckDebit(account models.Account, amount decimal.Decimal) error {
	if account.CashBalance.Sub(amount).IsNegative() {
		return fmt.Errorf("%w: balance %s, required %s", ErrInsufficientFunds, account.CashBalance, amount)
	}
	return nil
}

// CheckOversell fails when qty is more than the position holds.
func CheckOversell(position models.Position, qty decimal.Decimal) error {
	if qty.GreaterThan(position.Quantity) {
		return fmt.Errorf("%w: holding %s %s, selling %s", ErrInsufficientShares, position.Quantity, position.Symbol, qty)
	}
	return nil
}

// CheckBounds applies the policy cap to a cash credit of delta.
func (g Guard) CheckBounds(account models.Account, delta decimal.Decimal) error {
	if g.policy.MaxCashBalance.IsPositive() && account.CashBalance.Add(delta).GreaterThan(g.policy.MaxCashBalance) {
		return fmt.Errorf("%w: %s + %s > %s", ErrBoundsExceeded, account.CashBalance, delta, g.policy.MaxCashBalance)
	}
	return nil
}

// CheckQuantity validates a trade quantity against the policy.
func (g Guard) CheckQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return validationf("quantity must be positive, got %s", qty)
	}
	if g.policy.WholeSharesOnly && !qty.Equal(qty.Truncate(0)) {
		return validationf("fractional quantity %s not allowed", qty)
	}
	return nil
}

// CheckInvariants verifies the state a mutation would produce.
func CheckInvariants(account models.Account, position *models.Position) error {
	if account.CashBalance.IsNegative() {
		return fmt.Errorf("%w: cash balance %s for account %s", ErrInvariantViolation, account.CashBalance, account.ID)
	}
	if position != nil {
		if position.Quantity.IsNegative() {
			return fmt.Errorf("%w: quantity %s for %s", ErrInvariantViolation, position.Quantity, position.Symbol)
		}
		if position.AverageCost.IsNegative() {
			return fmt.Errorf("%w: average cost %s for %s", ErrInvariantViolation, position.AverageCost, position.Symbol)
		}
	}
	return nil
}
