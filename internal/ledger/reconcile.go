package ledger

import (
	"context"
	"fmt"

	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

// Drift is a symbol on which the position cache and the log projection differ.
// A nil side means that side has no open position.
type Drift struct {
	Symbol    string           `json:"symbol"`
	Cached    *models.Position `json:"cached,omitempty"`
	Projected *models.Position `json:"projected,omitempty"`
}

// ReconcileReport compares an account's materialised state with its logs.
type ReconcileReport struct {
	AccountID     string         `json:"account_id"`
	Stored        models.Account `json:"stored"`
	Projected     models.Account `json:"projected"`
	AccountDrift  bool           `json:"account_drift"`
	PositionDrift []Drift        `json:"position_drift,omitempty"`
	Repaired      bool           `json:"repaired"`
}

// Consistent is true when neither the account row nor any position drifted.
func (r ReconcileReport) Consistent() bool {
	return !r.AccountDrift && len(r.PositionDrift) == 0
}

// Reconcile replays the account's logs and compares the result with the stored
// account and position cache. It holds the account lock so that it reads one
// consistent snapshot.
func (l *Ledger) Reconcile(ctx context.Context, accountID string) (ReconcileReport, error) {
	return l.reconcile(ctx, accountID, false)
}

// Rebuild reconciles and then replaces the position cache with the projection.
func (l *Ledger) Rebuild(ctx context.Context, accountID string) (ReconcileReport, error) {
	return l.reconcile(ctx, accountID, true)
}

func (l *Ledger) reconcile(ctx context.Context, accountID string, repair bool) (ReconcileReport, error) {
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return ReconcileReport{}, storeErr("reconcile", err)
	}
	unlock, err := l.locks.acquire(ctx, accountID)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("reconcile: %w", err)
	}
	defer unlock()

	stored, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return ReconcileReport{}, storeErr("reconcile", err)
	}
	trades, err := l.store.GetTrades(ctx, accountID)
	if err != nil {
		return ReconcileReport{}, storeErr("reconcile", err)
	}
	movements, err := l.store.GetCashMovements(ctx, accountID)
	if err != nil {
		return ReconcileReport{}, storeErr("reconcile", err)
	}
	cached, err := l.store.GetPositions(ctx, accountID)
	if err != nil {
		return ReconcileReport{}, storeErr("reconcile", err)
	}

	projectedPositions, err := Project(trades)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("reconcile %s: %w", accountID, err)
	}
	projected, err := ProjectAccount(stored, movements, trades)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("reconcile %s: %w", accountID, err)
	}

	report := ReconcileReport{
		AccountID: accountID,
		Stored:    stored,
		Projected: projected,
		AccountDrift: !stored.CashBalance.Equal(projected.CashBalance) ||
			!stored.RealizedProfit.Equal(projected.RealizedProfit) ||
			stored.Version != projected.Version,
		PositionDrift: diffPositions(cached, projectedPositions),
	}

	if report.AccountDrift {
		l.log.Error().
			Str("account_id", accountID).
			Str("stored_cash", stored.CashBalance.String()).
			Str("projected_cash", projected.CashBalance.String()).
			Str("stored_profit", stored.RealizedProfit.String()).
			Str("projected_profit", projected.RealizedProfit.String()).
			Msg("Account row disagrees with its logs")
	}

	if repair && len(report.PositionDrift) > 0 {
		if err := l.store.ReplacePositions(ctx, accountID, projectedPositions); err != nil {
			return report, storeErr("rebuild positions", err)
		}
		report.Repaired = true
		l.log.Warn().Str("account_id", accountID).Int("symbols", len(report.PositionDrift)).Msg("Position cache rebuilt from trade log")
	}
	return report, nil
}

// ReconcileAll reconciles every account, repairing position drift when asked.
// It stops at the first account that cannot be read.
func (l *Ledger) ReconcileAll(ctx context.Context, repair bool) ([]ReconcileReport, error) {
	ids, err := l.store.ListAccountIDs(ctx)
	if err != nil {
		return nil, storeErr("list accounts", err)
	}

	reports := make([]ReconcileReport, 0, len(ids))
	for _, accountID := range ids {
		report, err := l.reconcile(ctx, accountID, repair)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func diffPositions(cached, projected []models.Position) []Drift {
	byCache := make(map[string]models.Position, len(cached))
	for _, p := range cached {
		byCache[p.Symbol] = p
	}
	byProjection := make(map[string]models.Position, len(projected))
	for _, p := range projected {
		byProjection[p.Symbol] = p
	}

	var drift []Drift
	for _, p := range projected {
		c, ok := byCache[p.Symbol]
		if ok && c.Equal(p) {
			continue
		}
		d := Drift{Symbol: p.Symbol, Projected: ptr(p)}
		if ok {
			d.Cached = ptr(c)
		}
		drift = append(drift, d)
	}
	for _, c := range cached {
		if _, ok := byProjection[c.Symbol]; !ok {
			drift = append(drift, Drift{Symbol: c.Symbol, Cached: ptr(c)})
		}
	}
	return drift
}

func ptr[T any](v T) *T {
	return &v
}
