// Package modification holds the hypothetical operator overrides an analyst
// wants to apply to a query plan.
package modification

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/multierr"

	"github.com/grafana/whatif/internal/plan"
)

// Kind is the category of an override. A request has exactly one kind.
type Kind string

const (
	ScanOverride Kind = "ScanOverride"
	JoinOverride Kind = "JoinOverride"
)

// Operator is an operator a request asks the optimizer to use.
type Operator string

const (
	IndexScan  Operator = "IndexScan"
	SeqScan    Operator = "SeqScan"
	HashJoin   Operator = "HashJoin"
	MergeJoin  Operator = "MergeJoin"
	NestedLoop Operator = "NestedLoop"
)

var operatorsByKind = map[Kind][]Operator{
	ScanOverride: {IndexScan, SeqScan},
	JoinOverride: {HashJoin, MergeJoin, NestedLoop},
}

var nodeTypes = map[Operator]string{
	IndexScan:  "Index Scan",
	SeqScan:    "Seq Scan",
	HashJoin:   "Hash Join",
	MergeJoin:  "Merge Join",
	NestedLoop: "Nested Loop",
}

// Kinds returns every supported kind.
func Kinds() []Kind {
	return []Kind{ScanOverride, JoinOverride}
}

// Operators returns the operators valid for k.
func Operators(k Kind) []Operator {
	return slices.Clone(operatorsByKind[k])
}

// NodeType returns the node type the oracle reports for o, or "" if o is
// not a supported operator.
func (o Operator) NodeType() string {
	return nodeTypes[o]
}

// UnsupportedOperatorError is returned for an operator outside the closed
// set of its kind.
type UnsupportedOperatorError struct {
	Kind     Kind
	Operator Operator
}

func (e *UnsupportedOperatorError) Error() string {
	if _, ok := operatorsByKind[e.Kind]; !ok {
		return fmt.Sprintf("unsupported modification kind %q", e.Kind)
	}
	return fmt.Sprintf("unsupported operator %q for %s (supported: %s)", e.Operator, e.Kind, joinOperators(operatorsByKind[e.Kind]))
}

func joinOperators(ops []Operator) string {
	s := make([]string, len(ops))
	for i, o := range ops {
		s[i] = string(o)
	}
	return strings.Join(s, ", ")
}

// Request asks for Operator to be used at the node addressed Target.
type Request struct {
	Target   plan.Address `json:"target" yaml:"target"`
	Kind     Kind         `json:"kind" yaml:"kind"`
	Operator Operator     `json:"operator" yaml:"operator"`
}

// Validate checks the operator against the closed set of the kind.
func (r Request) Validate() error {
	if !slices.Contains(operatorsByKind[r.Kind], r.Operator) {
		return &UnsupportedOperatorError{Kind: r.Kind, Operator: r.Operator}
	}
	if r.Target.Path() == nil {
		return fmt.Errorf("invalid target address %q", r.Target)
	}
	return nil
}

func (r Request) String() string {
	return fmt.Sprintf("%s(%s, %s)", r.Kind, r.Target, r.Operator)
}

// Compare orders requests by target address, then kind.
func Compare(a, b Request) int {
	if c := plan.CompareAddress(a.Target, b.Target); c != 0 {
		return c
	}
	return strings.Compare(string(a.Kind), string(b.Kind))
}

// ParseKind resolves a kind name. "scan" and "join" are accepted as short
// forms.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "scan", "scanoverride":
		return ScanOverride, nil
	case "join", "joinoverride":
		return JoinOverride, nil
	}
	return "", &UnsupportedOperatorError{Kind: Kind(name)}
}

// ParseOperator resolves an operator name for kind. Names are matched
// case-insensitively and may be written as node types ("Hash Join").
func ParseOperator(kind Kind, name string) (Operator, error) {
	ops, ok := operatorsByKind[kind]
	if !ok {
		return "", &UnsupportedOperatorError{Kind: kind, Operator: Operator(name)}
	}
	squashed := strings.ReplaceAll(strings.TrimSpace(name), " ", "")
	for _, o := range ops {
		if strings.EqualFold(squashed, string(o)) {
			return o, nil
		}
	}
	return "", &UnsupportedOperatorError{Kind: kind, Operator: Operator(name)}
}

// ParseRequest parses "ADDRESS=OPERATOR", e.g. "1.2=HashJoin" or "12=HashJoin".
func ParseRequest(kind Kind, s string) (Request, error) {
	addrText, opText, ok := strings.Cut(s, "=")
	if !ok {
		return Request{}, fmt.Errorf("invalid %s %q: expected ADDRESS=OPERATOR", kind, s)
	}
	addr, err := plan.ParseAddress(addrText)
	if err != nil {
		return Request{}, fmt.Errorf("invalid %s %q: %w", kind, s, err)
	}
	op, err := ParseOperator(kind, opText)
	if err != nil {
		return Request{}, err
	}
	return Request{Target: addr, Kind: kind, Operator: op}, nil
}

// ParseRequests parses every entry and reports all invalid ones at once.
func ParseRequests(kind Kind, entries []string) ([]Request, error) {
	var (
		reqs []Request
		errs error
	)
	for _, e := range entries {
		r, err := ParseRequest(kind, e)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		reqs = append(reqs, r)
	}
	return reqs, errs
}
