package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

// applyFill folds one trade into a position. It is the single definition of
// the costing rules, shared by the planners and the projector:
// buys re-weight the average cost, sells book (price - averageCost) * qty and
// leave the average untouched, and a position sold to zero forgets its average.
func applyFill(pos models.Position, t models.TradeRecord) (models.Position, decimal.Decimal, error) {
	next := pos
	next.AccountID = t.AccountID
	next.Symbol = t.Symbol
	next.UpdatedAt = t.Timestamp

	switch t.Side {
	case models.SideBuy:
		total := pos.Quantity.Add(t.Quantity)
		if pos.Quantity.IsZero() {
			next.AverageCost = t.Price
		} else {
			next.AverageCost = pos.CostBasis().Add(t.Notional()).Div(total)
		}
		next.Quantity = total
		return next, decimal.Zero, nil

	case models.SideSell:
		if t.Quantity.GreaterThan(pos.Quantity) {
			return pos, decimal.Zero, fmt.Errorf("%w: trade %s sells %s %s, only %s held",
				ErrInvariantViolation, t.ID, t.Quantity, t.Symbol, pos.Quantity)
		}
		realized := t.Price.Sub(pos.AverageCost).Mul(t.Quantity)
		next.Quantity = pos.Quantity.Sub(t.Quantity)
		if next.Quantity.IsZero() {
			next.AverageCost = decimal.Zero
		}
		return next, realized, nil

	default:
		return pos, decimal.Zero, fmt.Errorf("%w: trade %s has side %q", ErrInvariantViolation, t.ID, t.Side)
	}
}

// Project rebuilds open positions by folding trades in log order. It never
// modifies its input and returns the same result however often it is run.
func Project(trades []models.TradeRecord) ([]models.Position, error) {
	positions, _, err := fold(trades)
	if err != nil {
		return nil, err
	}

	out := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		if p.Open() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func fold(trades []models.TradeRecord) (map[string]models.Position, decimal.Decimal, error) {
	ordered := make([]models.TradeRecord, len(trades))
	copy(ordered, trades)
	models.SortTrades(ordered)

	positions := make(map[string]models.Position)
	realized := decimal.Zero
	for _, t := range ordered {
		next, r, err := applyFill(positions[t.Symbol], t)
		if err != nil {
			return nil, decimal.Zero, err
		}
		positions[t.Symbol] = next
		realized = realized.Add(r)
	}
	return positions, realized, nil
}

// ProjectAccount rebuilds an account's numeric state from its cash and trade
// logs. Identity fields are taken from base. Records are replayed by sequence so
// that a balance that would have dipped below zero is reported, not hidden.
func ProjectAccount(base models.Account, movements []models.CashMovement, trades []models.TradeRecord) (models.Account, error) {
	_, realized, err := fold(trades)
	if err != nil {
		return models.Account{}, err
	}

	type entry struct {
		seq   int64
		delta decimal.Decimal
		ts    time.Time
	}
	entries := make([]entry, 0, len(movements)+len(trades))
	for _, m := range movements {
		entries = append(entries, entry{seq: m.Seq, delta: m.Signed(), ts: m.Timestamp})
	}
	for _, t := range trades {
		delta := t.Notional()
		if t.Side == models.SideBuy {
			delta = delta.Neg()
		}
		entries = append(entries, entry{seq: t.Seq, delta: delta, ts: t.Timestamp})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	acct := models.Account{
		ID:             base.ID,
		Name:           base.Name,
		CashBalance:    decimal.Zero,
		RealizedProfit: realized,
		CreatedAt:      base.CreatedAt,
		UpdatedAt:      base.CreatedAt,
	}
	for _, e := range entries {
		acct.CashBalance = acct.CashBalance.Add(e.delta)
		if acct.CashBalance.IsNegative() {
			return models.Account{}, fmt.Errorf("%w: replay of account %s goes negative at seq %d", ErrInvariantViolation, base.ID, e.seq)
		}
		acct.Version = e.seq
		if e.ts.After(acct.UpdatedAt) {
			acct.UpdatedAt = e.ts
		}
	}
	return acct, nil
}
