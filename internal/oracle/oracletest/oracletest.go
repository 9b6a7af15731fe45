// Package oracletest provides in-memory oracles for tests.
package oracletest

import (
	"context"
	"slices"
	"sync"

	"github.com/grafana/whatif/internal/oracle"
	"github.com/grafana/whatif/internal/plan"
)

// Call is one recorded FetchPlan invocation.
type Call struct {
	Query   string
	Overlay oracle.Overlay
}

// Oracle is a fake oracle. Plans are chosen by the effective settings of
// the overlay: the entry of Plans whose settings are a subset of the
// overlay's settings and match the most switches wins, and Base is used
// when nothing matches. Every call is recorded.
type Oracle struct {
	Base  *plan.Tree
	Plans []Entry

	// Err fails every call after it is recorded.
	Err error
	// ResetErr is returned alongside every successful call with a
	// non-empty overlay.
	ResetErr error

	mut   sync.Mutex
	calls []Call
}

// Entry is a plan the fake returns when Settings are in effect.
type Entry struct {
	Settings map[string]string
	Tree     *plan.Tree
}

var _ oracle.Oracle = (*Oracle)(nil)

// Static returns an oracle that ignores overlays and always plans tree.
func Static(tree *plan.Tree) *Oracle {
	return &Oracle{Base: tree}
}

// Failing returns an oracle whose every call fails with err.
func Failing(err error) *Oracle {
	return &Oracle{Err: err}
}

func (o *Oracle) FetchPlan(ctx context.Context, query string, overlay oracle.Overlay) (*oracle.Fetch, error) {
	o.mut.Lock()
	defer o.mut.Unlock()

	o.calls = append(o.calls, Call{Query: query, Overlay: slices.Clone(overlay)})

	if err := ctx.Err(); err != nil {
		return nil, &oracle.OracleError{Op: "explain", Err: err}
	}
	if o.Err != nil {
		return nil, o.Err
	}

	fetch := &oracle.Fetch{Tree: o.pick(overlay.Settings())}
	if len(overlay) > 0 && o.ResetErr != nil {
		fetch.ResetErr = &oracle.ResetError{Overlay: overlay, Err: o.ResetErr}
	}
	return fetch, nil
}

func (o *Oracle) pick(settings map[string]string) *plan.Tree {
	var (
		best  *plan.Tree
		score = -1
	)
	for _, e := range o.Plans {
		if !subset(e.Settings, settings) || len(e.Settings) <= score {
			continue
		}
		best, score = e.Tree, len(e.Settings)
	}
	if best == nil {
		return o.Base
	}
	return best
}

func subset(want, have map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// Calls returns every call recorded so far.
func (o *Oracle) Calls() []Call {
	o.mut.Lock()
	defer o.mut.Unlock()
	return slices.Clone(o.calls)
}

// Overlays returns the effective settings of every recorded call.
func (o *Oracle) Overlays() []map[string]string {
	o.mut.Lock()
	defer o.mut.Unlock()
	out := make([]map[string]string, len(o.calls))
	for i, c := range o.calls {
		out[i] = c.Overlay.Settings()
	}
	return out
}
