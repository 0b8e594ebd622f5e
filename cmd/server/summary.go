package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitsession/internal/calculator"
	"github.com/mmynk/splitsession/internal/models"
)

func summaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary <session.json>",
		Short: "print what each participant owes",
		Long:  `Compute the split for a session exported as JSON ("-" reads stdin) without starting the server.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var session models.Session
			if err := json.NewDecoder(r).Decode(&session); err != nil {
				return fmt.Errorf("failed to decode session: %w", err)
			}
			calculator.Recalculate(&session.Bill)
			if err := calculator.ValidateBill(session.Bill); err != nil {
				return err
			}

			summary := calculator.SummarizeSession(&session)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			return printSummary(cmd.OutOrStdout(), session.Bill, summary)
		},
	}

	cmd.Flags().Bool("json", false, "print the full summary as JSON")
	return cmd
}

func printSummary(w io.Writer, bill models.Bill, summary models.SessionSummary) error {
	money := func(v float64) string { return calculator.FormatCurrency(v, bill.Currency) }

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", "Participant", "Subtotal", "Tax", "Service", "Discount", "Total")
	for _, p := range summary.Participants {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			p.Name, money(p.SubTotal), money(p.Tax), money(p.ServiceCharge), money(p.Discount), money(p.Total))
	}
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", "Bill",
		money(bill.Charges.SubTotal), money(bill.Charges.Tax), money(bill.Charges.ServiceCharge),
		money(bill.Charges.Discount), money(bill.Charges.Total))
	if err := tw.Flush(); err != nil {
		return err
	}

	if calculator.Reconciled(summary) {
		fmt.Fprintln(w, "Rounding difference assigned to the largest share.")
	}
	return nil
}
