package translate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/whatif/internal/modification"
	"github.com/grafana/whatif/internal/oracle"
)

func TestTranslate_Empty(t *testing.T) {
	res, err := Translate(nil)
	require.NoError(t, err)
	require.Empty(t, res.Overlay)
	require.Empty(t, res.Warnings)
}

func TestTranslate_IndexScan(t *testing.T) {
	res, err := Translate([]modification.Request{
		{Target: "1", Kind: modification.ScanOverride, Operator: modification.IndexScan},
	})
	require.NoError(t, err)
	require.Equal(t, oracle.Overlay{
		{Name: "enable_seqscan", Value: "off"},
		{Name: "enable_indexscan", Value: "on"},
		{Name: "enable_indexonlyscan", Value: "off"},
		{Name: "enable_bitmapscan", Value: "off"},
	}, res.Overlay)
	require.Empty(t, res.Warnings)
}

func TestTranslate_FamiliesAreDisjoint(t *testing.T) {
	res, err := Translate([]modification.Request{
		{Target: "1.1", Kind: modification.JoinOverride, Operator: modification.MergeJoin},
		{Target: "1.1.1", Kind: modification.ScanOverride, Operator: modification.SeqScan},
	})
	require.NoError(t, err)
	require.Equal(t, "enable_seqscan = on; enable_indexscan = off; enable_indexonlyscan = off; enable_bitmapscan = off; "+
		"enable_hashjoin = off; enable_mergejoin = on; enable_nestloop = off", res.Overlay.String())
	require.Empty(t, res.Warnings)
}

func TestTranslate_SameOperatorIsNotAContradiction(t *testing.T) {
	res, err := Translate([]modification.Request{
		{Target: "1.1", Kind: modification.JoinOverride, Operator: modification.HashJoin},
		{Target: "1.2", Kind: modification.JoinOverride, Operator: modification.HashJoin},
	})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Equal(t, "on", res.Overlay.Settings()["enable_hashjoin"])
}

func TestTranslate_ContradictionIsSurfaced(t *testing.T) {
	hash := modification.Request{Target: "1.1", Kind: modification.JoinOverride, Operator: modification.HashJoin}
	nested := modification.Request{Target: "1.1.2", Kind: modification.JoinOverride, Operator: modification.NestedLoop}
	merge := modification.Request{Target: "1.2", Kind: modification.JoinOverride, Operator: modification.MergeJoin}

	orders := [][]modification.Request{
		{hash, nested, merge},
		{merge, nested, hash},
		{nested, merge, hash},
	}

	var first *Translation
	for _, reqs := range orders {
		res, err := Translate(reqs)
		require.NoError(t, err)

		require.Equal(t, map[string]string{
			"enable_hashjoin":  "off",
			"enable_mergejoin": "on",
			"enable_nestloop":  "off",
		}, res.Overlay.Settings())
		require.Equal(t, []Warning{{
			Kind:       modification.JoinOverride,
			Winner:     merge,
			Overridden: []modification.Request{hash, nested},
		}}, res.Warnings)

		if first == nil {
			first = res
			continue
		}
		require.Equal(t, first, res)
	}

	require.Equal(t, "contradicting JoinOverride requests: MergeJoin at 1.2 overrides HashJoin at 1.1, NestedLoop at 1.1.2", first.Warnings[0].String())
}

func TestTranslate_UnsupportedOperator(t *testing.T) {
	_, err := Translate([]modification.Request{
		{Target: "1", Kind: modification.ScanOverride, Operator: modification.IndexScan},
		{Target: "1.1", Kind: modification.JoinOverride, Operator: "BroadcastJoin"},
	})
	var unsupported *modification.UnsupportedOperatorError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, modification.Operator("BroadcastJoin"), unsupported.Operator)
}
