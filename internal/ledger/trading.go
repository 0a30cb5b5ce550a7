package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/trading-ledger/internal/models"
	"github.com/sheikh-saqib/trading-ledger/internal/models/events"
)

// Order is a request to buy or sell at the oracle's price.
type Order struct {
	AccountID string
	Symbol    string
	Quantity  decimal.Decimal
	// PriceDate asks the oracle for the price on a given day instead of the latest.
	PriceDate *time.Time
	// LimitPrice is the worst price the caller accepts: a ceiling for buys,
	// a floor for sells. Nil accepts any price.
	LimitPrice *decimal.Decimal
}

type BuyResult struct {
	Trade    models.TradeRecord `json:"trade"`
	Position models.Position    `json:"position"`
	Account  models.Account     `json:"account"`
}

type SellResult struct {
	Trade          models.TradeRecord `json:"trade"`
	RealizedProfit decimal.Decimal    `json:"realized_profit"`
	// Position has zero quantity when the sell closed it.
	Position models.Position `json:"position"`
	Account  models.Account  `json:"account"`
}

func (l *Ledger) validate(o Order) (Order, error) {
	o.Symbol = models.NormalizeSymbol(o.Symbol)
	if o.AccountID == "" {
		return o, validationf("account id is required")
	}
	if o.Symbol == "" {
		return o, validationf("symbol is required")
	}
	if err := l.guard.CheckQuantity(o.Quantity); err != nil {
		return o, err
	}
	if o.LimitPrice != nil && !o.LimitPrice.IsPositive() {
		return o, validationf("limit price must be positive, got %s", o.LimitPrice)
	}
	return o, nil
}

// price asks the oracle for an execution price. The result is only a quote:
// funds and shares are re-checked against fresh state at commit time.
func (l *Ledger) price(ctx context.Context, o Order, side models.Side) (decimal.Decimal, error) {
	price, err := l.oracle.GetPrice(ctx, o.Symbol, o.PriceDate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %w", ErrPriceUnavailable, o.Symbol, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s quoted at %s", ErrPriceUnavailable, o.Symbol, price)
	}
	if o.LimitPrice != nil {
		if side == models.SideBuy && price.GreaterThan(*o.LimitPrice) {
			return decimal.Zero, fmt.Errorf("%w: buy %s at %s above %s", ErrLimitPrice, o.Symbol, price, o.LimitPrice)
		}
		if side == models.SideSell && price.LessThan(*o.LimitPrice) {
			return decimal.Zero, fmt.Errorf("%w: sell %s at %s below %s", ErrLimitPrice, o.Symbol, price, o.LimitPrice)
		}
	}
	return price, nil
}

// Buy debits cost = quantity * price, re-weights the position's average cost
// and appends a BUY record, all in one commit.
func (l *Ledger) Buy(ctx context.Context, o Order) (BuyResult, error) {
	o, err := l.validate(o)
	if err != nil {
		return BuyResult{}, err
	}
	if _, err := l.GetAccount(ctx, o.AccountID); err != nil {
		return BuyResult{}, err
	}

	price, err := l.price(ctx, o, models.SideBuy)
	if err != nil {
		l.log.Warn().Err(err).Str("account_id", o.AccountID).Str("symbol", o.Symbol).Msg("Buy not priced")
		return BuyResult{}, err
	}

	f := fill{id: l.tradeID(), symbol: o.Symbol, quantity: o.Quantity, price: price, priceDate: o.PriceDate}
	m, err := l.commit(ctx, o.AccountID, "buy", func(ctx context.Context, tx interfaces.AccountTx) (models.Mutation, error) {
		pos, _, err := tx.Position(ctx, f.symbol)
		if err != nil {
			return models.Mutation{}, err
		}
		return l.guard.planBuy(tx.Account(), pos, f, l.now())
	})
	if err != nil {
		l.log.Debug().Err(err).Str("account_id", o.AccountID).Str("symbol", o.Symbol).Msg("Buy rejected")
		return BuyResult{}, err
	}

	l.afterTrade(ctx, m)
	return BuyResult{Trade: *m.Trade, Position: *m.Position, Account: m.Account}, nil
}

// Sell credits proceeds, books realized profit against the average cost and
// appends a SELL record. Selling the whole position closes it.
func (l *Ledger) Sell(ctx context.Context, o Order) (SellResult, error) {
	o, err := l.validate(o)
	if err != nil {
		return SellResult{}, err
	}

	// Fail fast before spending an oracle call; the check is repeated under the lock.
	pos, ok, err := l.store.GetPosition(ctx, o.AccountID, o.Symbol)
	if err != nil {
		return SellResult{}, storeErr("sell", err)
	}
	if !ok || !pos.Open() {
		return SellResult{}, fmt.Errorf("%w: %s", ErrNoSuchPosition, o.Symbol)
	}
	if err := CheckOversell(pos, o.Quantity); err != nil {
		return SellResult{}, err
	}

	price, err := l.price(ctx, o, models.SideSell)
	if err != nil {
		l.log.Warn().Err(err).Str("account_id", o.AccountID).Str("symbol", o.Symbol).Msg("Sell not priced")
		return SellResult{}, err
	}

	f := fill{id: l.tradeID(), symbol: o.Symbol, quantity: o.Quantity, price: price, priceDate: o.PriceDate}
	m, err := l.commit(ctx, o.AccountID, "sell", func(ctx context.Context, tx interfaces.AccountTx) (models.Mutation, error) {
		pos, _, err := tx.Position(ctx, f.symbol)
		if err != nil {
			return models.Mutation{}, err
		}
		return l.guard.planSell(tx.Account(), pos, f, l.now())
	})
	if err != nil {
		l.log.Debug().Err(err).Str("account_id", o.AccountID).Str("symbol", o.Symbol).Msg("Sell rejected")
		return SellResult{}, err
	}

	l.afterTrade(ctx, m)
	return SellResult{
		Trade:          *m.Trade,
		RealizedProfit: m.Trade.RealizedProfit,
		Position:       *m.Position,
		Account:        m.Account,
	}, nil
}

func (l *Ledger) afterTrade(ctx context.Context, m models.Mutation) {
	t := m.Trade
	l.log.Info().
		Str("account_id", t.AccountID).
		Str("trade_id", t.ID).
		Str("symbol", t.Symbol).
		Str("side", string(t.Side)).
		Str("quantity", t.Quantity.String()).
		Str("price", t.Price.String()).
		Str("cash_balance", m.Account.CashBalance.String()).
		Msg("Trade committed")

	l.publish(ctx, t.AccountID, events.TradeExecuted{
		TradeID:        t.ID,
		AccountID:      t.AccountID,
		Symbol:         t.Symbol,
		Side:           string(t.Side),
		Quantity:       t.Quantity,
		Price:          t.Price,
		RealizedProfit: t.RealizedProfit,
		CashBalance:    m.Account.CashBalance,
		OccurredAt:     t.Timestamp,
	})
}
