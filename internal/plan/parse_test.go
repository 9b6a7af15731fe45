package plan

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	archive, err := txtar.ParseFile(fmt.Sprintf("./testdata/plans/%s.txtar", name))
	require.NoError(t, err)
	require.Len(t, archive.Files, 1)
	require.Equal(t, name+".json", archive.Files[0].Name)
	return archive.Files[0].Data
}

type expectNode struct {
	address  Address
	operator string
	relation string
	cost     float64
}

func TestParse(t *testing.T) {
	tests := []struct {
		fname    string
		nodes    []expectNode
		settings map[string]string
	}{
		{
			fname: "orders_seq_scan",
			nodes: []expectNode{
				{address: "1", operator: "Seq Scan", relation: "orders", cost: 1200},
			},
		},
		{
			fname: "customer_orders_hash_join",
			nodes: []expectNode{
				{address: "1", operator: "Sort", cost: 5158.83},
				{address: "1.1", operator: "Hash Join", cost: 4981.52},
				{address: "1.1.1", operator: "Seq Scan", relation: "orders", cost: 4106},
				{address: "1.1.2", operator: "Hash", cost: 484.5},
				{address: "1.1.2.1", operator: "Seq Scan", relation: "customer", cost: 484.5},
			},
			settings: map[string]string{"enable_mergejoin": "off"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.fname, func(t *testing.T) {
			tree, err := Parse(loadFixture(t, tt.fname))
			require.NoError(t, err)
			require.Equal(t, len(tt.nodes), tree.Len())
			require.Equal(t, tt.settings, tree.Settings)

			for i, want := range tt.nodes {
				require.Equal(t, want.address, tree.Addresses()[i])

				n, ok := tree.Lookup(want.address)
				require.True(t, ok, "node %s", want.address)
				require.Equal(t, want.operator, n.OperatorType)
				require.Equal(t, want.relation, n.RelationName)
				cost, ok := n.Cost()
				require.True(t, ok)
				require.InDelta(t, want.cost, cost, 1e-9)
			}
		})
	}
}

func TestParse_AttributesPassThrough(t *testing.T) {
	tree, err := Parse(loadFixture(t, "customer_orders_hash_join"))
	require.NoError(t, err)

	join, ok := tree.Lookup("1.1")
	require.True(t, ok)
	require.Equal(t, "(o.o_custkey = c.c_custkey)", join.Attributes["Hash Cond"])
	require.Equal(t, "Inner", join.Attributes["Join Type"])
	require.Equal(t, int64(15000), join.Attributes["Plan Rows"])
	require.Equal(t, 672.0, join.Attributes["Startup Cost"])
	require.NotContains(t, join.Attributes, "Node Type")
	require.NotContains(t, join.Attributes, "Plans")

	root, _ := tree.Lookup(RootAddress)
	require.Equal(t, []any{"c.c_custkey"}, root.Attributes["Sort Key"])
}

func TestParse_Idempotent(t *testing.T) {
	for _, fname := range []string{"orders_seq_scan", "customer_orders_hash_join", "partitioned_append"} {
		t.Run(fname, func(t *testing.T) {
			raw := loadFixture(t, fname)
			first, err := Parse(raw)
			require.NoError(t, err)
			second, err := Parse(raw)
			require.NoError(t, err)

			require.Equal(t, first.Addresses(), second.Addresses())
			for _, addr := range first.Addresses() {
				a, _ := first.Lookup(addr)
				b, _ := second.Lookup(addr)
				require.Equal(t, a.OperatorType, b.OperatorType)
				require.Equal(t, a.RelationName, b.RelationName)
			}
		})
	}
}

func TestParse_WideFanOut(t *testing.T) {
	tree, err := Parse(loadFixture(t, "partitioned_append"))
	require.NoError(t, err)
	require.Equal(t, 13, tree.Len())

	seen := map[Address]struct{}{}
	for _, addr := range tree.Addresses() {
		_, dup := seen[addr]
		require.False(t, dup, "duplicate address %s", addr)
		seen[addr] = struct{}{}
	}

	tenth, ok := tree.Lookup("1.10")
	require.True(t, ok)
	require.Equal(t, "lineitem_p10", tenth.RelationName)

	_, ok = tenth.Address.Legacy()
	require.False(t, ok, "legacy form must not exist past nine children")

	ninth, _ := tree.Lookup("1.9")
	legacy, ok := ninth.Address.Legacy()
	require.True(t, ok)
	require.Equal(t, int64(19), legacy)
}

func TestParse_AcceptedShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"explain array", `[{"Plan": {"Node Type": "Result", "Total Cost": 0.01}}]`},
		{"plan object", `{"Plan": {"Node Type": "Result", "Total Cost": 0.01}}`},
		{"bare node", `{"Node Type": "Result", "Total Cost": 0.01}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, "Result", tree.Root.OperatorType)
			require.Equal(t, RootAddress, tree.Root.Address)
		})
	}
}

func TestParse_MissingCostIsNotZero(t *testing.T) {
	tree, err := Parse([]byte(`{"Node Type": "Result"}`))
	require.NoError(t, err)
	_, ok := tree.TotalCost()
	require.False(t, ok)
	require.Nil(t, tree.Root.EstimatedCost)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		address Address
	}{
		{name: "not json", raw: `EXPLAIN failed`},
		{name: "empty array", raw: `[]`},
		{name: "no root", raw: `[{"Planning Time": 0.1}]`},
		{name: "scalar", raw: `42`},
		{name: "plan not an object", raw: `[{"Plan": "Seq Scan"}]`},
		{name: "missing node type", raw: `{"Plan": {"Total Cost": 1.0}}`, address: "1"},
		{name: "non-numeric total cost", raw: `{"Node Type": "Seq Scan", "Total Cost": "cheap"}`, address: "1"},
		{name: "negative total cost", raw: `{"Node Type": "Seq Scan", "Total Cost": -1}`, address: "1"},
		{name: "non-numeric startup cost", raw: `{"Node Type": "Seq Scan", "Startup Cost": true, "Total Cost": 1}`, address: "1"},
		{name: "plans not an array", raw: `{"Node Type": "Hash", "Plans": {}}`, address: "1"},
		{
			name:    "bad child",
			raw:     `{"Node Type": "Hash Join", "Plans": [{"Node Type": "Seq Scan"}, {"Node Type": "Hash", "Total Cost": "x"}]}`,
			address: "1.2",
		},
		{name: "invalid settings", raw: `[{"Plan": {"Node Type": "Result"}, "Settings": []}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)

			var malformed *MalformedPlanError
			require.ErrorAs(t, err, &malformed)
			require.Equal(t, tt.address, malformed.Address)
		})
	}
}

func TestTree_MarshalJSONIsParseable(t *testing.T) {
	tree, err := Parse(loadFixture(t, "customer_orders_hash_join"))
	require.NoError(t, err)

	out, err := json.Marshal(tree)
	require.NoError(t, err)

	var doc []map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Len(t, doc, 1)
	root := doc[0]["Plan"].(map[string]any)
	require.Equal(t, "Sort", root["Node Type"])
	require.Equal(t, 5158.83, root["Total Cost"])
	require.Equal(t, "1", root["Address"])
	require.Len(t, root["Plans"], 1)

	again, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, tree.Addresses(), again.Addresses())
	require.Equal(t, tree.Settings, again.Settings)
	join, _ := again.Lookup("1.1")
	require.NotContains(t, join.Attributes, "Address")
}
