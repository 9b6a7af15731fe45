package whatifcli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/grafana/whatif/internal/compare"
	"github.com/grafana/whatif/internal/modification"
	"github.com/grafana/whatif/internal/oracle"
	"github.com/grafana/whatif/internal/plan"
	"github.com/grafana/whatif/internal/whatif"
)

type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(s)); f {
	case outputText, outputJSON, outputYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q (supported: text, json, yaml)", s)
}

var (
	headerColor  = color.New(color.Bold)
	cheaperColor = color.New(color.FgGreen)
	costlyColor  = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
)

// planView is the structured form of a plan command result.
type planView struct {
	Query string     `json:"query"`
	Plan  *plan.Tree `json:"plan"`
}

// reportView is the structured form of a what-if report. Errors are
// rendered as strings.
type reportView struct {
	Query      string                 `json:"query"`
	QEP        *plan.Tree             `json:"qep"`
	AQP        *plan.Tree             `json:"aqp"`
	Requests   []modification.Request `json:"requests"`
	Unresolved []modification.Request `json:"unresolved,omitempty"`
	Overlay    oracle.Overlay         `json:"overlay"`
	Warnings   []string               `json:"warnings,omitempty"`
	Comparison *compare.Result        `json:"comparison"`
	ResetError string                 `json:"reset_error,omitempty"`
}

func newReportView(r *whatif.Report) reportView {
	v := reportView{
		Query:      r.Query,
		QEP:        r.QEP,
		AQP:        r.AQP,
		Requests:   r.Requests,
		Unresolved: r.Unresolved,
		Overlay:    r.Overlay,
		Comparison: r.Comparison,
	}
	if v.Requests == nil {
		v.Requests = []modification.Request{}
	}
	if v.Overlay == nil {
		v.Overlay = oracle.Overlay{}
	}
	for _, w := range r.Warnings {
		v.Warnings = append(v.Warnings, w.String())
	}
	if r.ResetErr != nil {
		v.ResetError = r.ResetErr.Error()
	}
	return v
}

func writePlan(w io.Writer, format outputFormat, query string, tree *plan.Tree) error {
	if format != outputText {
		return writeStructured(w, format, planView{Query: query, Plan: tree})
	}
	headerColor.Fprintln(w, "Query execution plan")
	_, err := io.WriteString(w, tree.String())
	return err
}

func writeReport(w io.Writer, format outputFormat, r *whatif.Report) error {
	if format != outputText {
		return writeStructured(w, format, newReportView(r))
	}

	headerColor.Fprintln(w, "Query execution plan")
	fmt.Fprint(w, r.QEP.String())
	fmt.Fprintln(w)

	if r.NoOp() {
		headerColor.Fprintln(w, "Alternative plan (no modifications applied)")
	} else {
		headerColor.Fprintln(w, "Alternative plan")
		fmt.Fprintf(w, "overlay: %s\n", r.Overlay)
	}
	fmt.Fprint(w, r.AQP.String())
	fmt.Fprintln(w)

	res := r.Comparison
	fmt.Fprintf(w, "original cost: %.2f\n", res.OriginalCost)
	fmt.Fprintf(w, "modified cost: %.2f\n", res.ModifiedCost)

	delta := fmt.Sprintf("%+.2f", res.CostDelta)
	if pct, ok := res.CostChangePercent(); ok {
		delta += fmt.Sprintf(" (%+.1f%%)", pct)
	}
	delta += ", " + res.Direction()
	switch {
	case res.CostDelta < 0:
		delta = cheaperColor.Sprint(delta)
	case res.CostDelta > 0:
		delta = costlyColor.Sprint(delta)
	}
	fmt.Fprintf(w, "cost delta:    %s\n", delta)

	if len(res.Mismatches) == 0 {
		fmt.Fprintln(w, "operator mismatches: none")
	} else {
		fmt.Fprintln(w, "operator mismatches:")
		for _, m := range res.Mismatches {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}

	for _, warning := range r.Warnings {
		warnColor.Fprintf(w, "warning: %s\n", warning)
	}
	for _, u := range r.Unresolved {
		warnColor.Fprintf(w, "warning: %s ignored, no node at %s\n", u, u.Target)
	}
	if r.ResetErr != nil {
		warnColor.Fprintf(w, "warning: %s\n", r.ResetErr)
	}
	return nil
}

func writeStructured(w io.Writer, format outputFormat, v any) error {
	bb, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == outputYAML {
		if bb, err = jsonToYAML(bb); err != nil {
			return err
		}
	} else {
		bb = append(bb, '\n')
	}
	_, err = w.Write(bb)
	return err
}

// jsonToYAML re-encodes JSON as block-style YAML, keeping key order. Going
// through JSON keeps the plan interchange keys ("Node Type", ...) identical
// across formats.
func jsonToYAML(in []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(in, &doc); err != nil {
		return nil, err
	}
	resetStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}
