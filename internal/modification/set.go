package modification

import (
	"maps"
	"slices"

	"github.com/grafana/whatif/internal/plan"
)

type key struct {
	target plan.Address
	kind   Kind
}

// Set holds at most one request per (address, kind). It carries no
// ordering: Requests always returns the canonical order, so the order in
// which requests were added never changes what is translated or compared.
//
// A Set is owned by one what-if cycle and is not safe for concurrent use.
type Set struct {
	requests map[key]Request
}

// NewSet returns a set holding reqs, added in order.
func NewSet(reqs ...Request) (*Set, error) {
	s := &Set{}
	for _, r := range reqs {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add validates r and stores it. A request for an address and kind already
// present replaces the previous one. The target is stored in canonical form,
// so "01.2" and "1.2" name the same request.
func (s *Set) Add(r Request) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.Target = r.Target.Canonical()
	if s.requests == nil {
		s.requests = make(map[key]Request)
	}
	s.requests[key{target: r.Target, kind: r.Kind}] = r
	return nil
}

// Remove drops the request for target and kind, if any.
func (s *Set) Remove(target plan.Address, kind Kind) {
	delete(s.requests, key{target: target.Canonical(), kind: kind})
}

// Len returns the number of requests.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.requests)
}

// Requests returns the requests ordered by address, then kind.
func (s *Set) Requests() []Request {
	if s == nil {
		return nil
	}
	reqs := slices.Collect(maps.Values(s.requests))
	slices.SortFunc(reqs, Compare)
	return reqs
}

// Resolution splits a set against a concrete plan.
type Resolution struct {
	// Resolved are the requests whose target exists in the plan, in
	// canonical order.
	Resolved []Request
	// Unresolved are the requests whose target does not exist. They are
	// kept for reporting and have no effect on translation or comparison.
	Unresolved []Request
}

// UnresolvedTargets returns the distinct addresses of unresolved requests.
func (r Resolution) UnresolvedTargets() []plan.Address {
	var addrs []plan.Address
	for _, req := range r.Unresolved {
		if !slices.Contains(addrs, req.Target) {
			addrs = append(addrs, req.Target)
		}
	}
	return addrs
}

// Resolve matches every request against tree.
func (s *Set) Resolve(tree *plan.Tree) Resolution {
	var res Resolution
	for _, r := range s.Requests() {
		if _, ok := tree.Lookup(r.Target); ok {
			res.Resolved = append(res.Resolved, r)
		} else {
			res.Unresolved = append(res.Unresolved, r)
		}
	}
	return res
}
