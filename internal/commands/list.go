package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
)

func newListCommand() *cobra.Command {
	var session string
	var conflictType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending conflicts in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			conflicts, err := rt.conflicts.ListPending(cmd.Context(), repository.ConflictFilters{
				SessionID: session,
				Type:      conflictType,
			})
			if err != nil {
				return err
			}
			if len(conflicts) == 0 {
				fmt.Println("no pending conflicts")
				return nil
			}
			for _, c := range conflicts {
				newID := "-"
				if c.NewExpenseID != nil {
					newID = *c.NewExpenseID
				}
				fmt.Printf("%s  %-12s  %5.1f  existing=%s new=%s\n",
					c.ID, c.ConflictType, c.SimilarityScore, c.ExistingExpenseID, newID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "only conflicts from this sync session")
	cmd.Flags().StringVar(&conflictType, "type", "", "only conflicts of this type")

	return cmd
}
