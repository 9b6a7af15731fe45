// Package translate turns modification requests into the optimizer
// switches that make the oracle prefer the requested operators.
//
// PostgreSQL's planner switches apply to the whole query, not to a single
// plan node. All requests of one cycle are therefore merged into a single
// overlay, and requests of one family that ask for different operators
// cannot all be honoured.
package translate

import (
	"fmt"
	"strings"

	"github.com/grafana/whatif/internal/modification"
	"github.com/grafana/whatif/internal/oracle"
)

// family is a disjoint group of mutually exclusive switches. Exactly one
// switch is turned on for the chosen operator and all others are turned
// off.
type family struct {
	kind     modification.Kind
	switches []string
	enables  map[modification.Operator]string
}

// families are listed in overlay order.
var families = []family{
	{
		kind:     modification.ScanOverride,
		switches: []string{"enable_seqscan", "enable_indexscan", "enable_indexonlyscan", "enable_bitmapscan"},
		enables: map[modification.Operator]string{
			modification.SeqScan:   "enable_seqscan",
			modification.IndexScan: "enable_indexscan",
		},
	},
	{
		kind:     modification.JoinOverride,
		switches: []string{"enable_hashjoin", "enable_mergejoin", "enable_nestloop"},
		enables: map[modification.Operator]string{
			modification.HashJoin:   "enable_hashjoin",
			modification.MergeJoin:  "enable_mergejoin",
			modification.NestedLoop: "enable_nestloop",
		},
	},
}

// Translation is the overlay for one set of requests.
type Translation struct {
	Overlay  oracle.Overlay `json:"overlay" yaml:"overlay"`
	Warnings []Warning      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Warning reports requests of one family that asked for different
// operators. Only Winner made it into the overlay.
type Warning struct {
	Kind       modification.Kind      `json:"kind" yaml:"kind"`
	Winner     modification.Request   `json:"winner" yaml:"winner"`
	Overridden []modification.Request `json:"overridden" yaml:"overridden"`
}

func (w Warning) String() string {
	overridden := make([]string, len(w.Overridden))
	for i, r := range w.Overridden {
		overridden[i] = fmt.Sprintf("%s at %s", r.Operator, r.Target)
	}
	return fmt.Sprintf("contradicting %s requests: %s at %s overrides %s", w.Kind, w.Winner.Operator, w.Winner.Target, strings.Join(overridden, ", "))
}

// Translate builds the overlay for reqs. Requests are processed in
// canonical order (address, then kind) whatever order they are given in,
// so within a family the request at the last address wins.
//
// An unsupported operator fails the whole translation.
func Translate(reqs []modification.Request) (*Translation, error) {
	set, err := modification.NewSet(reqs...)
	if err != nil {
		return nil, err
	}
	return TranslateSet(set)
}

// TranslateSet builds the overlay for every request held by set.
func TranslateSet(set *modification.Set) (*Translation, error) {
	byKind := map[modification.Kind][]modification.Request{}
	for _, r := range set.Requests() {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}

	res := &Translation{Overlay: oracle.Overlay{}}
	for _, f := range families {
		reqs := byKind[f.kind]
		if len(reqs) == 0 {
			continue
		}

		winner := reqs[len(reqs)-1]
		var overridden []modification.Request
		for _, r := range reqs[:len(reqs)-1] {
			if r.Operator != winner.Operator {
				overridden = append(overridden, r)
			}
		}
		if len(overridden) > 0 {
			res.Warnings = append(res.Warnings, Warning{Kind: f.kind, Winner: winner, Overridden: overridden})
		}

		enabled, ok := f.enables[winner.Operator]
		if !ok {
			return nil, &modification.UnsupportedOperatorError{Kind: winner.Kind, Operator: winner.Operator}
		}
		for _, s := range f.switches {
			value := "off"
			if s == enabled {
				value = "on"
			}
			res.Overlay = append(res.Overlay, oracle.Directive{Name: s, Value: value})
		}
	}
	return res, nil
}
