package plan

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/google/btree"
)

// Keys of the EXPLAIN (FORMAT JSON) interchange format the engine reads.
// Every other key of a node is carried in Node.Attributes untouched.
const (
	keyNodeType     = "Node Type"
	keyTotalCost    = "Total Cost"
	keyStartupCost  = "Startup Cost"
	keyRelationName = "Relation Name"
	keyAlias        = "Alias"
	keyPlans        = "Plans"
	keyPlan         = "Plan"
	keySettings     = "Settings"
	keyAddress      = "Address"
)

// Node is one operator of an execution plan.
type Node struct {
	Address      Address
	OperatorType string
	RelationName string
	Alias        string

	// EstimatedCost is the oracle's total cost estimate for the subtree, nil
	// when the oracle did not report one.
	EstimatedCost *float64

	Attributes map[string]any
	Children   []*Node
}

// NewNode returns a node with a known cost. Trees built by hand must still
// go through NewTree to be addressed.
func NewNode(operatorType string, cost float64, children ...*Node) *Node {
	return &Node{
		OperatorType:  operatorType,
		EstimatedCost: &cost,
		Attributes:    map[string]any{},
		Children:      children,
	}
}

// Cost returns the estimated cost and whether it is known.
func (n *Node) Cost() (float64, bool) {
	if n == nil || n.EstimatedCost == nil {
		return 0, false
	}
	return *n.EstimatedCost, true
}

// MarshalJSON emits the node in the interchange format, with an additional
// Address key. Parse ignores Address on input.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Attributes)+6)
	maps.Copy(out, n.Attributes)

	out[keyAddress] = n.Address
	out[keyNodeType] = n.OperatorType
	if n.EstimatedCost != nil {
		out[keyTotalCost] = *n.EstimatedCost
	}
	if n.RelationName != "" {
		out[keyRelationName] = n.RelationName
	}
	if n.Alias != "" {
		out[keyAlias] = n.Alias
	}
	if len(n.Children) > 0 {
		out[keyPlans] = n.Children
	}
	return json.Marshal(out)
}

// Tree is a parsed plan with an address index.
type Tree struct {
	Root *Node

	// Settings lists the planner settings the oracle reported as differing
	// from their defaults while planning.
	Settings map[string]string

	index *btree.BTreeG[*Node]
}

func lessByAddress(a, b *Node) bool {
	return CompareAddress(a.Address, b.Address) < 0
}

// NewTree assigns addresses to every node below root and indexes them.
// Addresses already set on the nodes are overwritten.
func NewTree(root *Node) (*Tree, error) {
	if root == nil {
		return nil, &MalformedPlanError{Reason: "plan has no root node"}
	}
	t := &Tree{
		Root:  root,
		index: btree.NewG(8, lessByAddress),
	}
	if err := t.assign(root, RootAddress, 0, map[*Node]struct{}{}); err != nil {
		return nil, err
	}
	return t, nil
}

// maxDepth bounds recursion on hostile input. PostgreSQL plans are nowhere
// near this deep.
const maxDepth = 1000

func (t *Tree) assign(n *Node, addr Address, depth int, seen map[*Node]struct{}) error {
	if depth > maxDepth {
		return &MalformedPlanError{Address: addr, Reason: "plan exceeds maximum depth"}
	}
	if _, ok := seen[n]; ok {
		return &MalformedPlanError{Address: addr, Reason: "plan node is shared or part of a cycle"}
	}
	seen[n] = struct{}{}

	n.Address = addr
	t.index.ReplaceOrInsert(n)
	for i, child := range n.Children {
		if child == nil {
			return &MalformedPlanError{Address: addr.Child(i), Reason: "nil child node"}
		}
		if err := t.assign(child, addr.Child(i), depth+1, seen); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the node at addr.
func (t *Tree) Lookup(addr Address) (*Node, bool) {
	if t == nil || t.index == nil {
		return nil, false
	}
	return t.index.Get(&Node{Address: addr})
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	if t == nil || t.index == nil {
		return 0
	}
	return t.index.Len()
}

// Addresses returns every address in the tree in pre-order.
func (t *Tree) Addresses() []Address {
	addrs := make([]Address, 0, t.Len())
	if t == nil || t.index == nil {
		return addrs
	}
	t.index.Ascend(func(n *Node) bool {
		addrs = append(addrs, n.Address)
		return true
	})
	return addrs
}

// Walk calls fn for every node in pre-order and stops at the first error.
func (t *Tree) Walk(fn func(*Node) error) error {
	if t == nil {
		return nil
	}
	return walk(t.Root, fn)
}

func walk(n *Node, fn func(*Node) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// TotalCost returns the root's estimated cost.
func (t *Tree) TotalCost() (float64, bool) {
	if t == nil {
		return 0, false
	}
	return t.Root.Cost()
}

// String renders the tree one node per line, indented by depth.
func (t *Tree) String() string {
	var sb strings.Builder
	_ = t.Walk(func(n *Node) error {
		sb.WriteString(strings.Repeat("  ", n.Address.Depth()))
		fmt.Fprintf(&sb, "[%s] %s", n.Address, n.OperatorType)
		if n.RelationName != "" {
			fmt.Fprintf(&sb, " on %s", n.RelationName)
			if n.Alias != "" && n.Alias != n.RelationName {
				fmt.Fprintf(&sb, " %s", n.Alias)
			}
		}
		if cost, ok := n.Cost(); ok {
			fmt.Fprintf(&sb, " (cost=%.2f)", cost)
		} else {
			sb.WriteString(" (cost=?)")
		}
		sb.WriteByte('\n')
		return nil
	})
	return sb.String()
}

// MarshalJSON emits the tree in the shape PostgreSQL returns for
// EXPLAIN (FORMAT JSON), so the output can be fed back into Parse or into
// plan visualization tools.
func (t *Tree) MarshalJSON() ([]byte, error) {
	entry := map[string]any{keyPlan: t.Root}
	if len(t.Settings) > 0 {
		entry[keySettings] = t.Settings
	}
	return json.Marshal([]any{entry})
}
