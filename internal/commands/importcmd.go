package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newImportCommand() *cobra.Command {
	var account string
	var timezone string

	cmd := &cobra.Command{
		Use:   "import <csv-file>",
		Short: "Import a transaction CSV and detect conflicts",
		Long: `Import reads rows of "date,amount,merchant,description,currency",
stores each as a pending expense, and runs duplicate detection against the
account's processed expenses. Rows without a conflict are promoted to
processed; conflicted rows wait in the review queue.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			tz := time.Local
			if timezone != "" {
				if tz, err = time.LoadLocation(timezone); err != nil {
					return fmt.Errorf("timezone: %w", err)
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := rt.intake.ImportCSV(cmd.Context(), f, account, tz)
			if err != nil {
				return err
			}

			fmt.Printf("session %s: imported %d, conflicts %d\n", res.SessionID, res.Imported, len(res.Conflicts))
			for _, c := range res.Conflicts {
				fmt.Printf("  %s  %-9s  score %.1f  existing %s\n",
					c.ID, c.ConflictType, c.SimilarityScore, c.ExistingExpenseID)
			}
			for _, e := range res.Errors {
				fmt.Fprintf(os.Stderr, "  error: %v\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account the CSV belongs to (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for dates (default local)")

	return cmd
}
