package commands

import (
	"fmt"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/esoto/expense-tracker-sub008/internal/metrics"
	"github.com/esoto/expense-tracker-sub008/internal/tui"
)

func newReviewCommand() *cobra.Command {
	var metricsAddr string
	var operator string

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Interactively review pending conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if metricsAddr != "" {
				if prom, ok := rt.recorder.(*metrics.Prometheus); ok {
					mux := http.NewServeMux()
					mux.Handle("/metrics", prom.Handler())
					go func() {
						if err := http.ListenAndServe(metricsAddr, mux); err != nil {
							fmt.Fprintf(os.Stderr, "metrics endpoint: %v\n", err)
						}
					}()
				}
			}

			app := tui.New(cmd.Context(),
				tui.Repos{Expenses: rt.expenses, Conflicts: rt.conflicts},
				tui.Services{Resolver: rt.resolver, AutoResolver: rt.autoResolver},
				operator)
			_, err = tea.NewProgram(app, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose prometheus counters on this address (e.g. :9090)")
	cmd.Flags().StringVar(&operator, "operator", "", "identity recorded on resolutions (default operator)")

	return cmd
}
