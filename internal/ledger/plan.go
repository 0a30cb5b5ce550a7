package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

// The planners below are pure: they take the state read inside the account
// transaction and return the mutation to stage, or the reason it is refused.

type fill struct {
	id        string
	symbol    string
	quantity  decimal.Decimal
	price     decimal.Decimal
	priceDate *time.Time
}

// stamp keeps an account's records in non-decreasing time order even if the
// wall clock steps backwards between two commits.
func stamp(acct models.Account, now time.Time) time.Time {
	if now.Before(acct.UpdatedAt) {
		return acct.UpdatedAt
	}
	return now
}

func (g Guard) planBuy(acct models.Account, pos models.Position, f fill, now time.Time) (models.Mutation, error) {
	cost := f.quantity.Mul(f.price)
	if err := CheckDebit(acct, cost); err != nil {
		return models.Mutation{}, err
	}

	ts := stamp(acct, now)
	trade := models.TradeRecord{
		ID:             f.id,
		AccountID:      acct.ID,
		Seq:            acct.NextSeq(),
		Symbol:         f.symbol,
		Side:           models.SideBuy,
		Quantity:       f.quantity,
		Price:          f.price,
		RealizedProfit: decimal.Zero,
		PriceDate:      f.priceDate,
		Timestamp:      ts,
	}
	next, _, err := applyFill(pos, trade)
	if err != nil {
		return models.Mutation{}, err
	}

	acct.CashBalance = acct.CashBalance.Sub(cost)
	acct.Version = trade.Seq
	acct.UpdatedAt = ts
	if err := CheckInvariants(acct, &next); err != nil {
		return models.Mutation{}, err
	}
	return models.Mutation{Account: acct, Position: &next, Trade: &trade}, nil
}

func (g Guard) planSell(acct models.Account, pos models.Position, f fill, now time.Time) (models.Mutation, error) {
	if !pos.Open() {
		return models.Mutation{}, fmt.Errorf("%w: %s", ErrNoSuchPosition, f.symbol)
	}
	if err := CheckOversell(pos, f.quantity); err != nil {
		return models.Mutation{}, err
	}

	ts := stamp(acct, now)
	trade := models.TradeRecord{
		ID:        f.id,
		AccountID: acct.ID,
		Seq:       acct.NextSeq(),
		Symbol:    f.symbol,
		Side:      models.SideSell,
		Quantity:  f.quantity,
		Price:     f.price,
		PriceDate: f.priceDate,
		Timestamp: ts,
	}
	next, realized, err := applyFill(pos, trade)
	if err != nil {
		return models.Mutation{}, err
	}
	trade.RealizedProfit = realized

	acct.CashBalance = acct.CashBalance.Add(trade.Notional())
	acct.RealizedProfit = acct.RealizedProfit.Add(realized)
	acct.Version = trade.Seq
	acct.UpdatedAt = ts
	if err := CheckInvariants(acct, &next); err != nil {
		return models.Mutation{}, err
	}
	return models.Mutation{Account: acct, Position: &next, Trade: &trade}, nil
}

func (g Guard) planDeposit(acct models.Account, id string, amount decimal.Decimal, now time.Time) (models.Mutation, error) {
	if !amount.IsPositive() {
		return models.Mutation{}, validationf("deposit amount must be positive, got %s", amount)
	}
	if err := g.CheckBounds(acct, amount); err != nil {
		return models.Mutation{}, err
	}
	return planMovement(acct, id, models.MovementDeposit, amount, now)
}

func (g Guard) planWithdraw(acct models.Account, id string, amount decimal.Decimal, now time.Time) (models.Mutation, error) {
	if !amount.IsPositive() {
		return models.Mutation{}, validationf("withdrawal amount must be positive, got %s", amount)
	}
	if err := CheckDebit(acct, amount); err != nil {
		return models.Mutation{}, err
	}
	return planMovement(acct, id, models.MovementWithdrawal, amount, now)
}

func planMovement(acct models.Account, id string, kind models.MovementKind, amount decimal.Decimal, now time.Time) (models.Mutation, error) {
	ts := stamp(acct, now)
	mv := models.CashMovement{
		ID:        id,
		AccountID: acct.ID,
		Seq:       acct.NextSeq(),
		Kind:      kind,
		Amount:    amount,
		Timestamp: ts,
	}
	acct.CashBalance = acct.CashBalance.Add(mv.Signed())
	acct.Version = mv.Seq
	acct.UpdatedAt = ts
	if err := CheckInvariants(acct, nil); err != nil {
		return models.Mutation{}, err
	}
	return models.Mutation{Account: acct, Movement: &mv}, nil
}
