package models

// Mutation is the staged result of one ledger operation. A store applies every
// part of it in a single transaction or none of it.
type Mutation struct {
	Account  Account       // new account state; Version already advanced by one
	Position *Position     // nil when untouched; zero quantity closes it
	Trade    *TradeRecord  // appended to the trade log
	Movement *CashMovement // appended to the cash log
}

// PreviousVersion is the account version the mutation was planned against.
func (m Mutation) PreviousVersion() int64 {
	return m.Account.Version - 1
}
