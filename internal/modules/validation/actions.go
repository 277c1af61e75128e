package validation

import "github.com/blumarkets/strata/internal/domain"

// ActionType identifies one of the supported portfolio actions.
type ActionType string

const (
	ActionAddFunds  ActionType = "ADD_FUNDS"
	ActionTrade     ActionType = "TRADE"
	ActionRebalance ActionType = "REBALANCE"
	ActionProtect   ActionType = "PROTECT"
	ActionBorrow    ActionType = "BORROW"
	ActionRepayLoan ActionType = "REPAY_LOAN"
)

// Action is the tagged union of action parameters. Each action type carries
// its own typed parameter record so the validator's dispatch is exhaustive.
type Action interface {
	Type() ActionType
}

// AddFunds tops up the cash balance.
type AddFunds struct {
	Amount int64 `json:"amount"`
}

func (AddFunds) Type() ActionType { return ActionAddFunds }

// Trade buys into or sells out of a single holding.
type Trade struct {
	AssetID string      `json:"asset_id"`
	Side    domain.Side `json:"side"`
	Amount  int64       `json:"amount"`
}

func (Trade) Type() ActionType { return ActionTrade }

// Rebalance deploys cash and re-targets unfrozen holdings to the split.
type Rebalance struct{}

func (Rebalance) Type() ActionType { return ActionRebalance }

// Protect buys loss protection on a holding for a number of months.
type Protect struct {
	AssetID string `json:"asset_id"`
	Months  int    `json:"months"`
}

func (Protect) Type() ActionType { return ActionProtect }

// Borrow opens a loan against a holding, freezing it as collateral.
// The principal is disbursed externally and does not enter the cash balance.
type Borrow struct {
	AssetID     string  `json:"asset_id"`
	Amount      int64   `json:"amount"`
	LoanToValue float64 `json:"loan_to_value"`
}

func (Borrow) Type() ActionType { return ActionBorrow }

// RepayLoan repays the active loan in full from cash, unfreezing the
// collateral. Partial repayment is not supported.
type RepayLoan struct{}

func (RepayLoan) Type() ActionType { return ActionRepayLoan }
