package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/params"
)

var paramsOutput string

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Inspect processing parameters",
}

var paramsDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the default parameters as YAML",
	Long: `Print the default parameters as YAML, or write them to a file to start a
parameter set.

Examples:
  lcimms params default > params.yaml
  lcimms params default --out configs/params.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := params.Default()
		if paramsOutput != "" {
			if err := p.SaveToFile(paramsOutput); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", paramsOutput)
			return nil
		}
		data, err := yaml.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var paramsValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a parameter file",
	Long:  `Load a YAML parameter file on top of the defaults and report every invalid value.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := params.LoadFromFile(args[0])
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
		return nil
	},
}

func init() {
	paramsCmd.AddCommand(paramsDefaultCmd)
	paramsCmd.AddCommand(paramsValidateCmd)

	paramsDefaultCmd.Flags().StringVarP(&paramsOutput, "out", "o", "", "Write to this file instead of stdout")
}
