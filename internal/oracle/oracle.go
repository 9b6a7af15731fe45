// Package oracle is the seam between the what-if engine and the external
// query optimizer that produces cost-annotated plans.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/grafana/whatif/internal/plan"
)

// Oracle returns the plan the optimizer chooses for a query while overlay
// is in effect.
//
// Implementations apply a non-empty overlay before planning and reset it
// afterwards whatever the outcome. Configuration is session-global, so an
// Oracle never runs two FetchPlan calls of one session at the same time.
type Oracle interface {
	FetchPlan(ctx context.Context, query string, overlay Overlay) (*Fetch, error)
}

// Fetch is the outcome of a successful FetchPlan.
type Fetch struct {
	Tree *plan.Tree

	// ResetErr is set when the plan was retrieved but restoring the
	// session configuration afterwards failed. The plan is still valid.
	ResetErr error
}

// Directive sets one optimizer switch.
type Directive struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

func (d Directive) String() string {
	return fmt.Sprintf("%s = %s", d.Name, d.Value)
}

// Overlay is an ordered list of directives. A later directive for the same
// switch overrides an earlier one.
type Overlay []Directive

// Settings returns the effective value of every switch in the overlay.
func (o Overlay) Settings() map[string]string {
	settings := make(map[string]string, len(o))
	for _, d := range o {
		settings[d.Name] = d.Value
	}
	return settings
}

func (o Overlay) String() string {
	parts := make([]string, len(o))
	for i, d := range o {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}

// OracleError reports a connection or query-level failure of the optimizer.
type OracleError struct {
	Op   string // what the oracle was doing, e.g. "connect", "explain"
	Code string // SQLSTATE when the server returned one
	Err  error
}

func (e *OracleError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("oracle %s failed (SQLSTATE %s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("oracle %s failed: %v", e.Op, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// ResetError reports that the session configuration could not be restored
// after a plan retrieval.
type ResetError struct {
	Overlay Overlay
	Err     error
}

func (e *ResetError) Error() string {
	return fmt.Sprintf("failed to reset optimizer configuration (%s): %v", e.Overlay, e.Err)
}

func (e *ResetError) Unwrap() error { return e.Err }
