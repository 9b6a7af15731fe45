package whatifcli

import (
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/grafana/whatif/internal/modification"
)

func compareCommand(env *environment, g *globalFlags) *cobra.Command {
	var scans, joins []string

	cmd := &cobra.Command{
		Use:   "compare [flags] <query>",
		Short: "Compare a plan against the plan chosen under operator overrides",
		Long: `The compare subcommand fetches the plan of a query, asks the optimizer to
use the requested operators and reports how the estimated cost changed.

Overrides are given as ADDRESS=OPERATOR, where ADDRESS is a node address as
printed by the plan subcommand:

  whatif compare --scan 1.1.1=IndexScan --join 1.1=MergeJoin "SELECT ..."

Optimizer switches apply to the whole query. When two nodes ask for
different operators of the same family, the node with the higher address
wins and a warning is printed.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,

		RunE: func(cmd *cobra.Command, args []string) (err error) {
			set, err := parseModifications(scans, joins)
			if err != nil {
				return err
			}

			s, err := g.openSession(env)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, s.Close()) }()

			ctx, cancel := s.context(cmd.Context())
			defer cancel()

			if _, err := s.engine.GenerateQEP(ctx, args[0]); err != nil {
				return err
			}
			report, err := s.engine.WhatIf(ctx, set)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), s.format, report)
		},
	}

	cmd.Flags().StringArrayVar(&scans, "scan", nil, "Scan override as ADDRESS=OPERATOR (IndexScan, SeqScan). May be repeated.")
	cmd.Flags().StringArrayVar(&joins, "join", nil, "Join override as ADDRESS=OPERATOR (HashJoin, MergeJoin, NestedLoop). May be repeated.")
	return cmd
}

// parseModifications reports every invalid flag at once.
func parseModifications(scans, joins []string) (*modification.Set, error) {
	scanReqs, scanErr := modification.ParseRequests(modification.ScanOverride, scans)
	joinReqs, joinErr := modification.ParseRequests(modification.JoinOverride, joins)
	if err := multierr.Combine(scanErr, joinErr); err != nil {
		return nil, err
	}
	return modification.NewSet(append(scanReqs, joinReqs...)...)
}
