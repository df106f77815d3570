package main

import (
	"github.com/spf13/cobra"

	"github.com/crimson-sun/flowguard/internal/client"
	"github.com/crimson-sun/flowguard/internal/dataset"
)

func newMetadataCmd(a *app) *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "List the protocols and flag sets found in the reference dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				md  dataset.Metadata
				err error
			)
			if remote != "" {
				md, err = client.New(remote).Metadata(commandContext(cmd))
			} else {
				md, err = dataset.ReadMetadata(a.cfg.Engine.DatasetPath())
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), md)
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a flowguard server")
	return cmd
}
