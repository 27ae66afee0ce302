package main

import (
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var title, description string

	cmd := &cobra.Command{
		Use:   "export <file.pdf>",
		Short: "Export a PDF document to Notion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			obs := newObserver(cmd, cfg)

			exporter, err := newExporter(cfg, obs)
			if err != nil {
				return err
			}

			ctx, span := obs.StartSpan(cmd.Context(), "cli.export")
			defer span.End()

			data, err := exporter.ExportFile(ctx, args[0], title, description)
			if err != nil {
				return err
			}

			cmd.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Notion page title (required)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "optional page description")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}
