package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/normanking/cortexmotion/internal/rig"
	"github.com/spf13/cobra"
)

func newParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "List the rig parameters",
		Long: `Params prints the parameters of the configured rig with their ranges and
defaults. With --yaml the output is a definitions file that rig.definitions_file
accepts.`,
		RunE: runParams,
	}
	cmd.Flags().Bool("yaml", false, "print as a rig definitions file")
	return cmd
}

func runParams(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	model, err := a.model()
	if err != nil {
		return err
	}
	defs := model.Definitions()

	if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
		data, err := rig.MarshalDefinitions(defs)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMIN\tMAX\tDEFAULT")
	for _, d := range defs {
		fmt.Fprintf(w, "%s\t%g\t%g\t%g\n", d.ID, d.Min, d.Max, d.Default)
	}
	return w.Flush()
}
