package whatifcli

import (
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func planCommand(env *environment, g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [flags] <query>",
		Short: "Print the plan the optimizer chooses for a query",
		Long: `The plan subcommand asks the server for the execution plan of a query and
prints it with the address of every node. Addresses are what the --scan and
--join flags of the compare subcommand refer to.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,

		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := g.openSession(env)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, s.Close()) }()

			ctx, cancel := s.context(cmd.Context())
			defer cancel()

			qep, err := s.engine.GenerateQEP(ctx, args[0])
			if err != nil {
				return err
			}
			return writePlan(cmd.OutOrStdout(), s.format, args[0], qep)
		},
	}
	return cmd
}
