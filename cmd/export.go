package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-admin/internal/export"
	"github.com/sells-group/lead-admin/internal/model"
)

var (
	exportOut   string
	exportStage int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		leads, err := st.ReadCollection(ctx)
		if err != nil {
			return err
		}

		if exportStage > 0 {
			filtered := leads[:0]
			for _, l := range leads {
				if l.Stage == model.Stage(exportStage) {
					filtered = append(filtered, l)
				}
			}
			leads = filtered
		}

		if exportOut == "" {
			return export.WriteCSV(os.Stdout, leads)
		}
		if err := export.WriteFile(exportOut, leads); err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.Int("leads", len(leads)),
			zap.String("out", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout)")
	exportCmd.Flags().IntVar(&exportStage, "stage", 0, "only export leads at this pipeline stage (1-16)")
	rootCmd.AddCommand(exportCmd)
}
