// Package validation is the single gate every mutating portfolio action
// passes through. It projects the action onto the current state, re-runs the
// drift and boundary checks against the projection, and returns an
// allow/deny decision with categorized messages.
//
// Message categories follow design intent, not Go error types. Blockers are
// structural impossibilities the user cannot fix by changing the same
// action's input. Errors are input-correctable and may carry remediation
// data such as funding options. Warnings never deny an action. Go errors
// out of Validate are reserved for caller-contract violations, such as a
// sell or protect naming an asset the portfolio does not hold.
package validation

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/blumarkets/strata/internal/domain"
	"github.com/blumarkets/strata/internal/modules/allocation"
	"github.com/blumarkets/strata/internal/modules/boundary"
	"github.com/blumarkets/strata/internal/modules/credit"
	"github.com/blumarkets/strata/internal/modules/exposure"
	"github.com/blumarkets/strata/internal/modules/protection"
	"github.com/blumarkets/strata/internal/policy"
)

// FundingOption suggests a way to raise the cash an action is short of.
type FundingOption struct {
	AssetID     string       `json:"asset_id"`
	Layer       domain.Layer `json:"layer"`
	Amount      int64        `json:"amount"`
	Description string       `json:"description"`
}

// Result is the outcome of validating one action.
// Projected is the post-action state and is set only when the action is
// allowed; callers commit it verbatim.
type Result struct {
	Allowed           bool                 `json:"allowed"`
	Warnings          []string             `json:"warnings"`
	Errors            []string             `json:"errors"`
	Blockers          []string             `json:"blockers"`
	ProjectedBoundary domain.BoundaryState `json:"projected_boundary"`
	FundingOptions    []FundingOption      `json:"funding_options,omitempty"`
	Projected         *domain.State        `json:"-"`
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) block(format string, args ...any) {
	r.Blockers = append(r.Blockers, fmt.Sprintf(format, args...))
}

// Validator dispatches action validation over the pure calculators.
type Validator struct {
	pol        *policy.Policy
	engine     *allocation.Engine
	classifier *boundary.Classifier
	credit     *credit.Calculator
	protection *protection.Calculator
	clock      domain.Clock
	log        zerolog.Logger
}

// NewValidator creates an action validator.
func NewValidator(
	pol *policy.Policy,
	engine *allocation.Engine,
	classifier *boundary.Classifier,
	creditCalc *credit.Calculator,
	protectionCalc *protection.Calculator,
	clock domain.Clock,
	log zerolog.Logger,
) *Validator {
	return &Validator{
		pol:        pol,
		engine:     engine,
		classifier: classifier,
		credit:     creditCalc,
		protection: protectionCalc,
		clock:      clock,
		log:        log.With().Str("service", "validation").Logger(),
	}
}

// Validate checks one action against the current state.
//
// The input state is never mutated. Any non-empty blockers or errors list
// forces Allowed=false; the two differ only in UI intent. When the action is
// allowed, ProjectedBoundary reflects the post-action state and Projected
// carries it; when denied, ProjectedBoundary reflects the unchanged state.
func (v *Validator) Validate(s domain.State, action Action) (Result, error) {
	var res Result
	var projected *domain.State
	var err error

	switch a := action.(type) {
	case AddFunds:
		projected = v.validateAddFunds(s, a, &res)
	case Trade:
		projected, err = v.validateTrade(s, a, &res)
	case Rebalance:
		projected, err = v.validateRebalance(s, &res)
	case Protect:
		projected, err = v.validateProtect(s, a, &res)
	case Borrow:
		projected = v.validateBorrow(s, a, &res)
	case RepayLoan:
		projected = v.validateRepayLoan(s, &res)
	default:
		return Result{}, fmt.Errorf("unknown action type %T", action)
	}
	if err != nil {
		return Result{}, err
	}

	res.Allowed = len(res.Blockers) == 0 && len(res.Errors) == 0

	if res.Allowed && projected != nil {
		res.ProjectedBoundary = v.classifier.Classify(*projected)
		res.Projected = projected
		if res.ProjectedBoundary.AtLeast(domain.BoundaryStructural) {
			res.warn("portfolio would be in %s after this action; a rebalance is recommended", res.ProjectedBoundary)
		}
	} else {
		res.ProjectedBoundary = v.classifier.Classify(s)
		res.Projected = nil
	}

	v.log.Debug().
		Str("action", string(action.Type())).
		Bool("allowed", res.Allowed).
		Str("boundary", string(res.ProjectedBoundary)).
		Int("warnings", len(res.Warnings)).
		Msg("Validated action")

	return res, nil
}

func (v *Validator) validateAddFunds(s domain.State, a AddFunds, res *Result) *domain.State {
	if a.Amount < v.pol.MinActionAmount {
		res.fail("amount %s is below the minimum of %s",
			domain.FormatIRR(a.Amount), domain.FormatIRR(v.pol.MinActionAmount))
		return nil
	}
	out := s.Clone()
	out.Cash += a.Amount
	return &out
}

func (v *Validator) validateTrade(s domain.State, a Trade, res *Result) (*domain.State, error) {
	if a.Amount < v.pol.MinActionAmount {
		res.fail("amount %s is below the minimum of %s",
			domain.FormatIRR(a.Amount), domain.FormatIRR(v.pol.MinActionAmount))
	}

	switch a.Side {
	case domain.SideBuy:
		if _, ok := v.pol.LayerOf(a.AssetID); !ok {
			return nil, fmt.Errorf("buy references asset %s outside the configured universe", a.AssetID)
		}
		if a.Amount > s.Cash {
			res.fail("insufficient cash: have %s, need %s",
				domain.FormatIRR(s.Cash), domain.FormatIRR(a.Amount))
		}
	case domain.SideSell:
		h := s.Portfolio.Find(a.AssetID)
		if h == nil {
			return nil, fmt.Errorf("sell references asset %s absent from the portfolio", a.AssetID)
		}
		if h.Frozen {
			res.block("%s is frozen as loan collateral and cannot be sold", a.AssetID)
		} else if a.Amount > h.Amount {
			res.warn("sell amount exceeds the %s holding; it will be clamped to %s",
				a.AssetID, domain.FormatIRR(h.Amount))
		}
	default:
		return nil, fmt.Errorf("unknown trade side %q", a.Side)
	}

	if len(res.Blockers) > 0 || len(res.Errors) > 0 {
		return nil, nil
	}

	out := s.Clone()
	p, cash, err := v.engine.Trade(out.Portfolio, out.Cash, a.AssetID, a.Side, a.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to project trade: %w", err)
	}
	out.Portfolio = p
	out.Cash = cash

	v.checkProjectedShares(s, out, a, res)
	return &out, nil
}

// checkProjectedShares applies the post-trade layer share rules. A sell out
// of FOUNDATION that breaches the minimum is structural and blocks; a buy
// that indirectly drags FOUNDATION down, or pushes UPSIDE over its maximum,
// is acknowledged with a warning only.
func (v *Validator) checkProjectedShares(before, after domain.State, a Trade, res *Result) {
	beforePct := layerPct(before)
	afterPct := layerPct(after)

	if afterPct.Foundation < v.pol.FoundationMinPct && afterPct.Foundation < beforePct.Foundation {
		layer, _ := v.pol.LayerOf(a.AssetID)
		if a.Side == domain.SideSell && layer == domain.LayerFoundation {
			res.block("selling %s would drop FOUNDATION to %.1f%%, below the %.0f%% minimum",
				a.AssetID, afterPct.Foundation, v.pol.FoundationMinPct)
		} else {
			res.warn("FOUNDATION would fall to %.1f%%, below the %.0f%% minimum",
				afterPct.Foundation, v.pol.FoundationMinPct)
		}
	}

	if a.Side == domain.SideBuy && afterPct.Upside > v.pol.UpsideMaxPct && afterPct.Upside > beforePct.Upside {
		res.warn("UPSIDE would rise to %.1f%%, above the %.0f%% maximum",
			afterPct.Upside, v.pol.UpsideMaxPct)
	}
}

func (v *Validator) validateRebalance(s domain.State, res *Result) (*domain.State, error) {
	if s.Split == nil {
		return nil, fmt.Errorf("rebalance requested before a target split was set")
	}

	for _, h := range s.Portfolio.Holdings {
		if h.Frozen {
			res.warn("%s is frozen as loan collateral and will be left untouched, leaving residual drift", h.AssetID)
		}
	}

	out := s.Clone()
	p, cash := v.engine.RebalanceToTarget(out.Portfolio, out.Cash, *out.Split)
	out.Portfolio = p
	out.Cash = cash
	return &out, nil
}

func (v *Validator) validateProtect(s domain.State, a Protect, res *Result) (*domain.State, error) {
	h := s.Portfolio.Find(a.AssetID)
	if h == nil {
		return nil, fmt.Errorf("protect references asset %s absent from the portfolio", a.AssetID)
	}
	if a.Months <= 0 {
		return nil, fmt.Errorf("protect requested for %d months", a.Months)
	}

	now := v.clock()
	if s.ActiveProtection(a.AssetID, now) != nil {
		res.block("%s already has active protection", a.AssetID)
		return nil, nil
	}

	premium := v.protection.Premium(*h, a.Months)
	if premium > s.Cash {
		res.fail("insufficient cash for the %s premium: have %s",
			domain.FormatIRR(premium), domain.FormatIRR(s.Cash))
		res.FundingOptions = v.fundingOptions(s, premium-s.Cash)
		return nil, nil
	}

	out := s.Clone()
	out.Cash -= premium
	out.Protections = append(out.Protections, v.protection.NewProtection(*h, a.Months, now))
	return &out, nil
}

// fundingOptions suggests partial sells that would raise the missing amount,
// preferring unfrozen FOUNDATION holdings large enough to cover it.
func (v *Validator) fundingOptions(s domain.State, shortfall int64) []FundingOption {
	var opts []FundingOption
	for _, layer := range domain.Layers() {
		for _, h := range s.Portfolio.Holdings {
			if h.Layer != layer || h.Frozen || h.Amount < shortfall {
				continue
			}
			opts = append(opts, FundingOption{
				AssetID: h.AssetID,
				Layer:   h.Layer,
				Amount:  shortfall,
				Description: fmt.Sprintf("sell %s of %s to cover the shortfall",
					domain.FormatIRR(shortfall), h.AssetID),
			})
		}
	}
	return opts
}

func (v *Validator) validateBorrow(s domain.State, a Borrow, res *Result) *domain.State {
	h := s.Portfolio.Find(a.AssetID)
	if h == nil {
		res.fail("asset %s is not held in the portfolio", a.AssetID)
		return nil
	}
	if h.Frozen {
		res.block("%s is already pledged as collateral", a.AssetID)
	}
	if s.Loan != nil {
		res.block("a loan is already active; repay it before borrowing again")
	}

	lp := v.pol.Layers[h.Layer]
	if a.LoanToValue <= 0 {
		res.block("loan-to-value %.2f must be positive", a.LoanToValue)
	} else if a.LoanToValue > lp.MaxLTV {
		res.block("loan-to-value %.2f exceeds the %s maximum of %.2f",
			a.LoanToValue, h.Layer, lp.MaxLTV)
	} else if a.LoanToValue > lp.RecommendedLTV {
		res.warn("loan-to-value %.2f is above the recommended %.2f for %s",
			a.LoanToValue, lp.RecommendedLTV, h.Layer)
	}
	if h.Layer == domain.LayerUpside && a.LoanToValue > lp.RecommendedLTV {
		res.warn("borrowing at high loan-to-value against volatile UPSIDE collateral")
	}

	if a.Amount < v.pol.MinActionAmount {
		res.fail("amount %s is below the minimum of %s",
			domain.FormatIRR(a.Amount), domain.FormatIRR(v.pol.MinActionAmount))
	}
	if maxBorrow := int64(float64(h.Amount) * a.LoanToValue); a.Amount > maxBorrow && a.LoanToValue > 0 {
		res.fail("amount %s exceeds the maximum borrowable %s at loan-to-value %.2f",
			domain.FormatIRR(a.Amount), domain.FormatIRR(maxBorrow), a.LoanToValue)
	}

	if len(res.Blockers) > 0 || len(res.Errors) > 0 {
		return nil
	}

	out := s.Clone()
	collateral := out.Portfolio.Find(a.AssetID)
	collateral.Frozen = true
	loan := v.credit.NewLoan(*collateral, a.Amount, a.LoanToValue, v.clock)
	out.Loan = &loan

	// The principal is disbursed externally, so shares are unchanged; a
	// portfolio already below the foundation floor cannot lever up further.
	if pct := layerPct(out); pct.Foundation < v.pol.FoundationMinPct {
		res.block("FOUNDATION is at %.1f%%, below the %.0f%% minimum; borrowing is not allowed",
			pct.Foundation, v.pol.FoundationMinPct)
		return nil
	}
	return &out
}

func layerPct(s domain.State) exposure.Percentages {
	return exposure.Of(s.Portfolio, s.Cash)
}

func (v *Validator) validateRepayLoan(s domain.State, res *Result) *domain.State {
	if s.Loan == nil {
		res.block("no active loan to repay")
		return nil
	}
	if s.Loan.Principal > s.Cash {
		res.fail("insufficient cash to repay the full principal of %s: have %s",
			domain.FormatIRR(s.Loan.Principal), domain.FormatIRR(s.Cash))
		return nil
	}

	out := s.Clone()
	out.Cash -= out.Loan.Principal
	if h := out.Portfolio.Find(out.Loan.CollateralAssetID); h != nil {
		h.Frozen = false
	}
	out.Loan = nil
	return &out
}
