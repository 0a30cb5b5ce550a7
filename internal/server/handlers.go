package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/trading-ledger/internal/ledger"
	"github.com/sheikh-saqib/trading-ledger/internal/models"
)

// Ledger is the set of ledger operations exposed over HTTP.
type Ledger interface {
	CreateAccount(ctx context.Context, name string) (models.Account, error)
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (models.CashMovement, models.Account, error)
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (models.CashMovement, models.Account, error)
	Buy(ctx context.Context, o ledger.Order) (ledger.BuyResult, error)
	Sell(ctx context.Context, o ledger.Order) (ledger.SellResult, error)
	GetCashBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetProfit(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetTrades(ctx context.Context, accountID string) ([]models.TradeRecord, error)
	GetTrade(ctx context.Context, accountID, tradeID string) (models.TradeRecord, error)
	GetCashMovements(ctx context.Context, accountID string) ([]models.CashMovement, error)
	GetHoldings(ctx context.Context, accountID string) ([]models.Position, error)
	GetHolding(ctx context.Context, accountID, symbol string) (models.Position, error)
	GetValuedHoldings(ctx context.Context, accountID string) ([]models.Valuation, error)
	GetSummary(ctx context.Context, accountID string) (models.PortfolioSummary, error)
	Reconcile(ctx context.Context, accountID string) (ledger.ReconcileReport, error)
	Rebuild(ctx context.Context, accountID string) (ledger.ReconcileReport, error)
}

var _ Ledger = (*ledger.Ledger)(nil)

// LedgerHandlers contains HTTP handlers for the trading ledger
type LedgerHandlers struct {
	ledger Ledger
	log    zerolog.Logger
}

// NewLedgerHandlers creates a new ledger handlers instance
func NewLedgerHandlers(l Ledger, log zerolog.Logger) *LedgerHandlers {
	return &LedgerHandlers{
		ledger: l,
		log:    log.With().Str("handler", "ledger").Logger(),
	}
}

// RegisterRoutes mounts the account routes under r.
func (h *LedgerHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/accounts", h.HandleCreateAccount)
	r.Get("/accounts", h.HandleListAccounts)

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Get("/", h.HandleGetAccount)
		r.Post("/deposit", h.HandleDeposit)
		r.Post("/withdraw", h.HandleWithdraw)
		r.Post("/buy", h.HandleBuy)
		r.Post("/sell", h.HandleSell)
		r.Get("/balance", h.HandleGetBalance)
		r.Get("/profit", h.HandleGetProfit)
		r.Get("/trades", h.HandleGetTrades)
		r.Get("/trades/{tradeID}", h.HandleGetTrade)
		r.Get("/cash-movements", h.HandleGetCashMovements)
		r.Get("/holdings", h.HandleGetHoldings)
		r.Get("/holdings/valued", h.HandleGetValuedHoldings)
		r.Get("/holdings/{symbol}", h.HandleGetHolding)
		r.Get("/summary", h.HandleGetSummary)
		r.Post("/reconcile", h.HandleReconcile)
	})
}

type createAccountRequest struct {
	Name string `json:"name"`
}

type cashRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type cashResponse struct {
	Movement models.CashMovement `json:"movement"`
	Account  models.Account      `json:"account"`
}

// tradeRequest is the body of buy and sell. Date is YYYY-MM-DD and asks for
// that day's price; LimitPrice caps a buy and floors a sell.
type tradeRequest struct {
	Symbol     string           `json:"symbol"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Date       string           `json:"date,omitempty"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
}

type amountResponse struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// HandleCreateAccount opens a new account
// POST /api/accounts
func (h *LedgerHandlers) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	acct, err := h.ledger.CreateAccount(r.Context(), req.Name)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, acct)
}

// HandleListAccounts lists all accounts
// GET /api/accounts
func (h *LedgerHandlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// HandleGetAccount returns the account row
// GET /api/accounts/{accountID}
func (h *LedgerHandlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ledger.GetAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, acct)
}

// HandleDeposit credits cash
// POST /api/accounts/{accountID}/deposit
func (h *LedgerHandlers) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleCash(w, r, h.ledger.Deposit)
}

// HandleWithdraw debits cash
// POST /api/accounts/{accountID}/withdraw
func (h *LedgerHandlers) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleCash(w, r, h.ledger.Withdraw)
}

func (h *LedgerHandlers) handleCash(w http.ResponseWriter, r *http.Request,
	op func(context.Context, string, decimal.Decimal) (models.CashMovement, models.Account, error)) {
	var req cashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mv, acct, err := op(r.Context(), chi.URLParam(r, "accountID"), req.Amount)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, cashResponse{Movement: mv, Account: acct})
}

// HandleBuy executes a buy at the oracle price
// POST /api/accounts/{accountID}/buy
func (h *LedgerHandlers) HandleBuy(w http.ResponseWriter, r *http.Request) {
	order, ok := h.decodeOrder(w, r)
	if !ok {
		return
	}
	res, err := h.ledger.Buy(r.Context(), order)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// HandleSell executes a sell at the oracle price
// POST /api/accounts/{accountID}/sell
func (h *LedgerHandlers) HandleSell(w http.ResponseWriter, r *http.Request) {
	order, ok := h.decodeOrder(w, r)
	if !ok {
		return
	}
	res, err := h.ledger.Sell(r.Context(), order)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

func (h *LedgerHandlers) decodeOrder(w http.ResponseWriter, r *http.Request) (ledger.Order, bool) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return ledger.Order{}, false
	}

	order := ledger.Order{
		AccountID:  chi.URLParam(r, "accountID"),
		Symbol:     req.Symbol,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	}
	if req.Date != "" {
		day, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return ledger.Order{}, false
		}
		order.PriceDate = &day
	}
	return order, true
}

// HandleGetBalance returns the cash balance
// GET /api/accounts/{accountID}/balance
func (h *LedgerHandlers) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	balance, err := h.ledger.GetCashBalance(r.Context(), accountID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, amountResponse{AccountID: accountID, Amount: balance})
}

// HandleGetProfit returns realized profit
// GET /api/accounts/{accountID}/profit
func (h *LedgerHandlers) HandleGetProfit(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	profit, err := h.ledger.GetProfit(r.Context(), accountID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, amountResponse{AccountID: accountID, Amount: profit})
}

// HandleGetTrades returns the trade log in order
// GET /api/accounts/{accountID}/trades
func (h *LedgerHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.ledger.GetTrades(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if trades == nil {
		trades = []models.TradeRecord{}
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// HandleGetTrade returns one trade
// GET /api/accounts/{accountID}/trades/{tradeID}
func (h *LedgerHandlers) HandleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.ledger.GetTrade(r.Context(), chi.URLParam(r, "accountID"), chi.URLParam(r, "tradeID"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, trade)
}

// HandleGetCashMovements returns the cash log
// GET /api/accounts/{accountID}/cash-movements
func (h *LedgerHandlers) HandleGetCashMovements(w http.ResponseWriter, r *http.Request) {
	movements, err := h.ledger.GetCashMovements(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if movements == nil {
		movements = []models.CashMovement{}
	}
	h.writeJSON(w, http.StatusOK, movements)
}

// HandleGetHoldings returns open positions
// GET /api/accounts/{accountID}/holdings
func (h *LedgerHandlers) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.ledger.GetHoldings(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if holdings == nil {
		holdings = []models.Position{}
	}
	h.writeJSON(w, http.StatusOK, holdings)
}

// HandleGetHolding returns one open position
// GET /api/accounts/{accountID}/holdings/{symbol}
func (h *LedgerHandlers) HandleGetHolding(w http.ResponseWriter, r *http.Request) {
	pos, err := h.ledger.GetHolding(r.Context(), chi.URLParam(r, "accountID"), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pos)
}

// HandleGetValuedHoldings returns open positions marked to market
// GET /api/accounts/{accountID}/holdings/valued
func (h *LedgerHandlers) HandleGetValuedHoldings(w http.ResponseWriter, r *http.Request) {
	valued, err := h.ledger.GetValuedHoldings(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, valued)
}

// HandleGetSummary returns cash, profit and valued holdings together
// GET /api/accounts/{accountID}/summary
func (h *LedgerHandlers) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.GetSummary(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// HandleReconcile compares the account with its logs
// POST /api/accounts/{accountID}/reconcile?repair=true
func (h *LedgerHandlers) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	repair, _ := strconv.ParseBool(r.URL.Query().Get("repair"))

	run := h.ledger.Reconcile
	if repair {
		run = h.ledger.Rebuild
	}
	report, err := run(r.Context(), accountID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// statusFor maps the ledger error taxonomy onto HTTP.
func statusFor(err error) int {
	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindBusiness:
		return http.StatusUnprocessableEntity
	case ledger.KindRetryable:
		if errors.Is(err, ledger.ErrConcurrencyConflict) {
			return http.StatusConflict
		}
		return http.StatusServiceUnavailable
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

func (h *LedgerHandlers) writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("Ledger request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"error": clientMessage(err),
		"kind":  ledger.KindOf(err).String(),
	})
}

// clientMessage is the error text a caller sees. Infrastructure faults wrap
// driver and transport errors, so they are reported by kind only.
func clientMessage(err error) string {
	switch ledger.KindOf(err) {
	case ledger.KindValidation, ledger.KindNotFound, ledger.KindBusiness:
		return err.Error()
	case ledger.KindRetryable:
		switch {
		case errors.Is(err, ledger.ErrConcurrencyConflict):
			return "account busy, retry"
		case errors.Is(err, ledger.ErrPriceUnavailable):
			return "price unavailable"
		default:
			return "storage unavailable"
		}
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return "request timed out"
		}
		return "internal error"
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
