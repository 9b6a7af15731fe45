package modification

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/grafana/whatif/internal/plan"
)

func TestSet_SameKindOverwrites(t *testing.T) {
	s, err := NewSet(
		Request{Target: "1.1", Kind: JoinOverride, Operator: HashJoin},
		Request{Target: "1.1", Kind: JoinOverride, Operator: MergeJoin},
	)
	require.NoError(t, err)
	require.Equal(t, []Request{{Target: "1.1", Kind: JoinOverride, Operator: MergeJoin}}, s.Requests())
}

func TestSet_NonCanonicalTargetsOverwrite(t *testing.T) {
	for _, target := range []plan.Address{"01", "+1", "001"} {
		t.Run(string(target), func(t *testing.T) {
			s, err := NewSet(
				Request{Target: "1", Kind: JoinOverride, Operator: HashJoin},
				Request{Target: target, Kind: JoinOverride, Operator: MergeJoin},
			)
			require.NoError(t, err)
			require.Equal(t, []Request{{Target: "1", Kind: JoinOverride, Operator: MergeJoin}}, s.Requests())

			s.Remove(target, JoinOverride)
			require.Zero(t, s.Len())
		})
	}
}

func TestSet_DifferentKindsAccumulate(t *testing.T) {
	s, err := NewSet(
		Request{Target: "1.1", Kind: JoinOverride, Operator: NestedLoop},
		Request{Target: "1.1", Kind: ScanOverride, Operator: IndexScan},
	)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	require.Equal(t, []Request{
		{Target: "1.1", Kind: JoinOverride, Operator: NestedLoop},
		{Target: "1.1", Kind: ScanOverride, Operator: IndexScan},
	}, s.Requests())

	s.Remove("1.1", JoinOverride)
	require.Equal(t, []Request{{Target: "1.1", Kind: ScanOverride, Operator: IndexScan}}, s.Requests())
}

func TestSet_RequestsAreOrderIndependent(t *testing.T) {
	reqs := []Request{
		{Target: "1.2", Kind: ScanOverride, Operator: SeqScan},
		{Target: "1", Kind: JoinOverride, Operator: HashJoin},
		{Target: "1.10", Kind: JoinOverride, Operator: MergeJoin},
		{Target: "1.1.1", Kind: ScanOverride, Operator: IndexScan},
	}
	expect := []Request{reqs[1], reqs[3], reqs[0], reqs[2]}

	for _, perm := range permutations(reqs) {
		s, err := NewSet(perm...)
		require.NoError(t, err)
		require.Equal(t, expect, s.Requests())
	}
}

func TestSet_RejectsUnsupportedOperator(t *testing.T) {
	s := &Set{}
	err := s.Add(Request{Target: "1", Kind: ScanOverride, Operator: HashJoin})

	var unsupported *UnsupportedOperatorError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, ScanOverride, unsupported.Kind)
	require.Equal(t, HashJoin, unsupported.Operator)
	require.Equal(t, 0, s.Len())

	err = s.Add(Request{Target: "1", Kind: "AggregateOverride", Operator: "HashAggregate"})
	require.ErrorAs(t, err, &unsupported)
	require.EqualError(t, err, `unsupported modification kind "AggregateOverride"`)

	err = s.Add(Request{Target: "", Kind: ScanOverride, Operator: SeqScan})
	require.Error(t, err)
}

func TestSet_Resolve(t *testing.T) {
	tree, err := plan.NewTree(plan.NewNode("Hash Join", 30,
		plan.NewNode("Seq Scan", 10),
		plan.NewNode("Hash", 12, plan.NewNode("Seq Scan", 11)),
	))
	require.NoError(t, err)

	s, err := NewSet(
		Request{Target: "1.2.1", Kind: ScanOverride, Operator: IndexScan},
		Request{Target: "1.3", Kind: ScanOverride, Operator: IndexScan},
		Request{Target: "1", Kind: JoinOverride, Operator: MergeJoin},
		Request{Target: "1.3", Kind: JoinOverride, Operator: HashJoin},
	)
	require.NoError(t, err)

	res := s.Resolve(tree)
	require.Equal(t, []Request{
		{Target: "1", Kind: JoinOverride, Operator: MergeJoin},
		{Target: "1.2.1", Kind: ScanOverride, Operator: IndexScan},
	}, res.Resolved)
	require.Len(t, res.Unresolved, 2)
	require.Equal(t, []plan.Address{"1.3"}, res.UnresolvedTargets())
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		kind   Kind
		in     string
		expect Request
		err    string
	}{
		{kind: JoinOverride, in: "1=HashJoin", expect: Request{Target: "1", Kind: JoinOverride, Operator: HashJoin}},
		{kind: JoinOverride, in: "12=merge join", expect: Request{Target: "1.2", Kind: JoinOverride, Operator: MergeJoin}},
		{kind: JoinOverride, in: "1.1.10=Nested Loop", expect: Request{Target: "1.1.10", Kind: JoinOverride, Operator: NestedLoop}},
		{kind: ScanOverride, in: "1=indexscan", expect: Request{Target: "1", Kind: ScanOverride, Operator: IndexScan}},
		{kind: ScanOverride, in: "1=BitmapScan", err: `unsupported operator "BitmapScan" for ScanOverride (supported: IndexScan, SeqScan)`},
		{kind: ScanOverride, in: "1", err: `invalid ScanOverride "1": expected ADDRESS=OPERATOR`},
		{kind: ScanOverride, in: "0=SeqScan", err: `invalid ScanOverride "0=SeqScan": invalid plan address "0": legacy addresses only contain digits 1-9`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := ParseRequest(tt.kind, tt.in)
			if tt.err != "" {
				require.EqualError(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expect, r)
		})
	}
}

func TestParseRequests_ReportsEveryError(t *testing.T) {
	reqs, err := ParseRequests(JoinOverride, []string{"1=HashJoin", "1.1=Bogus", "nope", "1.2=MergeJoin"})
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.Len(t, reqs, 2)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("scan")
	require.NoError(t, err)
	require.Equal(t, ScanOverride, k)

	k, err = ParseKind("JoinOverride")
	require.NoError(t, err)
	require.Equal(t, JoinOverride, k)

	_, err = ParseKind("aggregate")
	require.EqualError(t, err, `unsupported modification kind "aggregate"`)
}

func TestOperator_NodeType(t *testing.T) {
	for _, k := range Kinds() {
		for _, o := range Operators(k) {
			require.NotEmpty(t, o.NodeType(), "operator %s", o)
		}
	}
	require.Equal(t, "Hash Join", HashJoin.NodeType())
	require.Empty(t, Operator("Bogus").NodeType())
}

func permutations(reqs []Request) [][]Request {
	if len(reqs) <= 1 {
		return [][]Request{append([]Request(nil), reqs...)}
	}
	var out [][]Request
	for i := range reqs {
		rest := make([]Request, 0, len(reqs)-1)
		rest = append(rest, reqs[:i]...)
		rest = append(rest, reqs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]Request{reqs[i]}, p...))
		}
	}
	return out
}
