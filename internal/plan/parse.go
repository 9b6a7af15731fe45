package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// MalformedPlanError is returned when the oracle's output cannot be turned
// into a plan tree.
type MalformedPlanError struct {
	Address Address // empty when the problem is not tied to a node
	Reason  string
	Err     error
}

func (e *MalformedPlanError) Error() string {
	msg := "malformed plan"
	if e.Address != "" {
		msg += fmt.Sprintf(" at node %s", e.Address)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedPlanError) Unwrap() error { return e.Err }

// Parse builds a tree from EXPLAIN (FORMAT JSON) output. It accepts the
// array PostgreSQL returns, a single {"Plan": ...} object, or a bare node.
func Parse(raw []byte) (*Tree, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &MalformedPlanError{Reason: "invalid JSON", Err: err}
	}

	if arr, ok := doc.([]any); ok {
		if len(arr) == 0 {
			return nil, &MalformedPlanError{Reason: "plan has no root node"}
		}
		doc = arr[0]
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &MalformedPlanError{Reason: fmt.Sprintf("expected a JSON object, got %T", doc)}
	}

	var settings map[string]string
	rootObj := obj
	if p, ok := obj[keyPlan]; ok {
		rootObj, ok = p.(map[string]any)
		if !ok {
			return nil, &MalformedPlanError{Reason: fmt.Sprintf("%q is not an object", keyPlan)}
		}
		var err error
		if settings, err = parseSettings(obj[keySettings]); err != nil {
			return nil, err
		}
	} else if _, ok := obj[keyNodeType]; !ok {
		return nil, &MalformedPlanError{Reason: "plan has no root node"}
	}

	root, err := buildNode(rootObj, RootAddress, 0)
	if err != nil {
		return nil, err
	}

	t, err := NewTree(root)
	if err != nil {
		return nil, err
	}
	t.Settings = settings
	return t, nil
}

func parseSettings(v any) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &MalformedPlanError{Reason: fmt.Sprintf("%q is not an object", keySettings)}
	}
	settings := make(map[string]string, len(m))
	for k, val := range m {
		settings[k] = fmt.Sprint(val)
	}
	return settings, nil
}

// buildNode converts one decoded node. addr is only used for error
// reporting; NewTree assigns the final addresses.
func buildNode(obj map[string]any, addr Address, depth int) (*Node, error) {
	if depth > maxDepth {
		return nil, &MalformedPlanError{Address: addr, Reason: "plan exceeds maximum depth"}
	}

	nodeType, ok := obj[keyNodeType].(string)
	if !ok || nodeType == "" {
		return nil, &MalformedPlanError{Address: addr, Reason: fmt.Sprintf("missing or invalid %q", keyNodeType)}
	}

	n := &Node{
		OperatorType: nodeType,
		Attributes:   make(map[string]any),
	}

	for key, val := range obj {
		switch key {
		case keyNodeType, keyAddress:
		case keyTotalCost:
			cost, err := parseCost(val)
			if err != nil {
				return nil, &MalformedPlanError{Address: addr, Reason: fmt.Sprintf("invalid %q", key), Err: err}
			}
			n.EstimatedCost = &cost
		case keyStartupCost:
			cost, err := parseCost(val)
			if err != nil {
				return nil, &MalformedPlanError{Address: addr, Reason: fmt.Sprintf("invalid %q", key), Err: err}
			}
			n.Attributes[key] = cost
		case keyRelationName:
			n.RelationName = fmt.Sprint(val)
		case keyAlias:
			n.Alias = fmt.Sprint(val)
		case keyPlans:
			children, ok := val.([]any)
			if !ok {
				return nil, &MalformedPlanError{Address: addr, Reason: fmt.Sprintf("%q is not an array", keyPlans)}
			}
			for i, c := range children {
				childObj, ok := c.(map[string]any)
				if !ok {
					return nil, &MalformedPlanError{Address: addr.Child(i), Reason: "child plan is not an object"}
				}
				child, err := buildNode(childObj, addr.Child(i), depth+1)
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, child)
			}
		default:
			n.Attributes[key] = normalize(val)
		}
	}

	return n, nil
}

func parseCost(v any) (float64, error) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	f, err := num.Float64()
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cost %v is not a finite non-negative number", f)
	}
	return f, nil
}

// normalize replaces json.Number values with int64 or float64 so callers
// never see the decoder's intermediate type.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		for i := range val {
			val[i] = normalize(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = normalize(val[k])
		}
		return val
	default:
		return val
	}
}
