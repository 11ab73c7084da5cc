package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-arlaunch"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage capability rules files",
	}
	cmd.AddCommand(newRulesInitCmd())
	return cmd
}

func newRulesInitCmd() *cobra.Command {
	var (
		format string
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in capability rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "" && !cmd.Flags().Changed("format") {
				detected, err := arlaunch.RulesFormatFromPath(output)
				if err != nil {
					return err
				}
				format = string(detected)
			}
			data, err := arlaunch.MarshalRules(arlaunch.DefaultRules(), arlaunch.RulesFormat(format))
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("rules: %s exists; use --force to overwrite", output)
				}
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("rules: write %s: %w", output, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", string(arlaunch.RulesTOML), "toml, yaml or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
