// Package compare diffs the plan the optimizer chose against the plan it
// chose under a what-if overlay.
package compare

import (
	"fmt"

	"github.com/grafana/whatif/internal/modification"
	"github.com/grafana/whatif/internal/plan"
)

// IncompleteCostDataError is returned when a plan root carries no cost.
type IncompleteCostDataError struct {
	Side string // "original" or "modified"
}

func (e *IncompleteCostDataError) Error() string {
	return fmt.Sprintf("%s plan has no root cost", e.Side)
}

// Mismatch is a request the optimizer did not follow.
type Mismatch struct {
	Address   plan.Address          `json:"address" yaml:"address"`
	Kind      modification.Kind     `json:"kind" yaml:"kind"`
	Requested modification.Operator `json:"requested" yaml:"requested"`

	// Observed is the node type found at Address in the modified plan, or
	// empty when the modified plan has no such node.
	Observed string `json:"observed" yaml:"observed"`
}

func (m Mismatch) String() string {
	if m.Observed == "" {
		return fmt.Sprintf("%s: requested %s, node absent from modified plan", m.Address, m.Requested)
	}
	return fmt.Sprintf("%s: requested %s, optimizer chose %s", m.Address, m.Requested, m.Observed)
}

// Result is the cost and operator comparison of a QEP and its AQP.
type Result struct {
	OriginalCost float64 `json:"original_cost" yaml:"original_cost"`
	ModifiedCost float64 `json:"modified_cost" yaml:"modified_cost"`

	// CostDelta is ModifiedCost - OriginalCost; negative means cheaper.
	CostDelta float64 `json:"cost_delta" yaml:"cost_delta"`

	// OperatorMismatch lists the distinct addresses with at least one
	// mismatch, in canonical order.
	OperatorMismatch []plan.Address `json:"operator_mismatch" yaml:"operator_mismatch"`
	Mismatches       []Mismatch     `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
}

// Direction describes the sign of CostDelta.
func (r *Result) Direction() string {
	switch {
	case r.CostDelta < 0:
		return "cheaper"
	case r.CostDelta > 0:
		return "more expensive"
	default:
		return "unchanged"
	}
}

// CostChangePercent returns CostDelta relative to OriginalCost. It reports
// false when the original cost is zero.
func (r *Result) CostChangePercent() (float64, bool) {
	if r.OriginalCost == 0 {
		return 0, false
	}
	return r.CostDelta / r.OriginalCost * 100, true
}

// Compare diffs qep and aqp. Costs are compared at the root only. Every
// request is checked against the node at its address in aqp; requests are
// expected to be resolved against qep already.
func Compare(qep, aqp *plan.Tree, reqs []modification.Request) (*Result, error) {
	original, ok := qep.TotalCost()
	if !ok {
		return nil, &IncompleteCostDataError{Side: "original"}
	}
	modified, ok := aqp.TotalCost()
	if !ok {
		return nil, &IncompleteCostDataError{Side: "modified"}
	}

	res := &Result{
		OriginalCost:     original,
		ModifiedCost:     modified,
		CostDelta:        modified - original,
		OperatorMismatch: []plan.Address{},
	}

	set, err := modification.NewSet(reqs...)
	if err != nil {
		return nil, err
	}
	for _, r := range set.Requests() {
		var observed string
		if n, ok := aqp.Lookup(r.Target); ok {
			observed = n.OperatorType
			if observed == r.Operator.NodeType() {
				continue
			}
		}
		res.Mismatches = append(res.Mismatches, Mismatch{
			Address:   r.Target,
			Kind:      r.Kind,
			Requested: r.Operator,
			Observed:  observed,
		})
		if n := len(res.OperatorMismatch); n == 0 || res.OperatorMismatch[n-1] != r.Target {
			res.OperatorMismatch = append(res.OperatorMismatch, r.Target)
		}
	}
	return res, nil
}
