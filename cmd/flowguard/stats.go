package main

import (
	"github.com/spf13/cobra"

	"github.com/crimson-sun/flowguard/internal/dataset"
	"github.com/crimson-sun/flowguard/internal/model"
)

func newStatsCmd(a *app) *cobra.Command {
	var attackType string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the reference dataset rows of one traffic class",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tbl, err := dataset.Load(a.cfg.Engine.DatasetPath())
			if err != nil {
				return err
			}
			cs, err := tbl.ClassStats(attackType)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cs)
		},
	}
	cmd.Flags().StringVar(&attackType, "attack-type", model.Classes[0], "traffic class to summarize")
	return cmd
}
