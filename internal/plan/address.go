package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a node by its structural position in a plan tree. It
// is the sequence of 1-based child ordinals walked from the root, where the
// root itself is the single ordinal 1. The canonical text form joins the
// ordinals with dots, e.g. "1.2.1".
//
// Addresses are recomputed from the tree shape on every parse, so the same
// position in a QEP and in an AQP of unchanged shape carries the same
// address.
type Address string

// RootAddress is the address of every tree's root node.
const RootAddress Address = "1"

// Child returns the address of the i-th (0-based) child of a.
func (a Address) Child(i int) Address {
	return a + Address("."+strconv.Itoa(i+1))
}

// Path returns the ordinals of a. It returns nil for an invalid address.
func (a Address) Path() []int {
	parts := strings.Split(string(a), ".")
	path := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return nil
		}
		path = append(path, n)
	}
	return path
}

// Canonical returns a rebuilt from its ordinals, dropping leading zeros and
// signs ("01.+2" becomes "1.2"). It returns "" for an invalid address.
func (a Address) Canonical() Address {
	path := a.Path()
	if path == nil {
		return ""
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return Address(strings.Join(parts, "."))
}

// Depth returns the number of edges between the root and a.
func (a Address) Depth() int {
	return strings.Count(string(a), ".")
}

// Legacy returns the base-10 positional form of a, where the child i of a
// node addressed n is addressed n*10+i+1. The form only exists while every
// node on the path has fewer than ten children; ok is false otherwise.
func (a Address) Legacy() (n int64, ok bool) {
	path := a.Path()
	if len(path) == 0 || len(path) > 18 {
		return 0, false
	}
	for _, p := range path {
		if p > 9 {
			return 0, false
		}
		n = n*10 + int64(p)
	}
	return n, true
}

func (a Address) String() string {
	return string(a)
}

// ParseAddress parses either the dotted form ("1.2.1") or the legacy
// base-10 form ("121") of an address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty plan address")
	}

	var path []int
	if strings.Contains(s, ".") {
		path = Address(s).Path()
		if path == nil {
			return "", fmt.Errorf("invalid plan address %q", s)
		}
	} else {
		for _, r := range s {
			if r < '1' || r > '9' {
				return "", fmt.Errorf("invalid plan address %q: legacy addresses only contain digits 1-9", s)
			}
			path = append(path, int(r-'0'))
		}
	}

	if path[0] != 1 {
		return "", fmt.Errorf("invalid plan address %q: addresses start at the root (1)", s)
	}

	addr := RootAddress
	for _, p := range path[1:] {
		addr = addr.Child(p - 1)
	}
	return addr, nil
}

// CompareAddress orders addresses in pre-order: a parent sorts before its
// children, and siblings sort by position.
func CompareAddress(a, b Address) int {
	pa, pb := a.Path(), b.Path()
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}
