package main

import (
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var leadsLimit int

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect the local lead collection",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
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
		if leadsLimit > 0 && len(leads) > leadsLimit {
			leads = leads[:leadsLimit]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()

		p := message.NewPrinter(language.English)
		p.Fprintln(w, "NAME\tTAX ID\tPRODUCT\tVALUE\tSTAGE")
		for _, l := range leads {
			p.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\n",
				l.FullName, l.TaxID, l.Product, l.TotalValue, l.Stage,
			)
		}
		return nil
	},
}

var leadsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count leads in the collection",
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

		message.NewPrinter(language.English).Printf("%d\n", len(leads))
		return nil
	},
}

func init() {
	leadsListCmd.Flags().IntVar(&leadsLimit, "limit", 50, "maximum leads to list (0 = all)")
	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsCountCmd)
	rootCmd.AddCommand(leadsCmd)
}
