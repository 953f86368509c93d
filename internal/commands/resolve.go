package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/esoto/expense-tracker-sub008/internal/service"
)

func newResolveCommand() *cobra.Command {
	var action string
	var mergeFields []string
	var setExisting []string
	var setNew []string
	var actor string

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Apply a resolution action to one conflict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseActionFlags(action, mergeFields, setExisting, setNew)
			if err != nil {
				return err
			}

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.resolver.Resolve(cmd.Context(), args[0], parsed, actor); err != nil {
				return err
			}
			fmt.Printf("resolved %s (%s)\n", args[0], parsed.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "keep_existing | keep_new | keep_both | merged | custom")
	_ = cmd.MarkFlagRequired("action")
	cmd.Flags().StringSliceVar(&mergeFields, "merge-field", nil, "field=source pairs for merged (source is 'new' or 'existing')")
	cmd.Flags().StringSliceVar(&setExisting, "set-existing", nil, "field=value pairs applied to the existing expense (custom)")
	cmd.Flags().StringSliceVar(&setNew, "set-new", nil, "field=value pairs applied to the new expense (custom)")
	cmd.Flags().StringVar(&actor, "actor", "operator", "identity recorded on the resolution")

	return cmd
}

func newBulkCommand() *cobra.Command {
	var action string
	var ids []string
	var actor string

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Apply one resolution action to many conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseActionFlags(action, nil, nil, nil)
			if err != nil {
				return err
			}

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.resolver.BulkResolve(cmd.Context(), ids, parsed, actor)
			if err != nil {
				return err
			}
			fmt.Printf("resolved %d, failed %d\n", res.Resolved, res.Failed)
			for _, f := range res.Failures {
				fmt.Printf("  %s: %s\n", f.ConflictID, strings.Join(f.Errors, "; "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "keep_existing | keep_new | keep_both")
	_ = cmd.MarkFlagRequired("action")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "conflict IDs (comma separated or repeated)")
	_ = cmd.MarkFlagRequired("ids")
	cmd.Flags().StringVar(&actor, "actor", "operator", "identity recorded on the resolutions")

	return cmd
}

func newUndoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "undo <conflict-id>",
		Short: "Revert a resolved conflict to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.resolver.Undo(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("undid %s\n", args[0])
			return nil
		},
	}
}

func newIgnoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <conflict-id>",
		Short: "Mark a pending conflict as ignored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.resolver.Ignore(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("ignored %s\n", args[0])
			return nil
		},
	}
}

func newPreviewCommand() *cobra.Command {
	var mergeFields []string

	cmd := &cobra.Command{
		Use:   "preview <conflict-id>",
		Short: "Preview a merged resolution without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parsePairs(mergeFields)
			if err != nil {
				return err
			}

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			preview, err := rt.resolver.PreviewMerge(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			if preview == nil {
				fmt.Println("conflict has no new expense; nothing to merge")
				return nil
			}
			for k, v := range preview {
				fmt.Printf("%-18s %v\n", k, v)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&mergeFields, "merge-field", nil, "field=source pairs (source is 'new' or 'existing')")

	return cmd
}

func newAutoResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "autoresolve",
		Short: "Resolve high-confidence duplicate conflicts automatically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.autoResolver.ResolveObviousDuplicates(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("auto-resolved %d conflicts\n", n)
			return nil
		},
	}
}

// parseActionFlags builds the typed action from the CLI's name + payload
// flags.
func parseActionFlags(name string, mergeFields, setExisting, setNew []string) (service.Action, error) {
	fields, err := parsePairs(mergeFields)
	if err != nil {
		return nil, err
	}
	existing, err := parseAttrPairs(setExisting)
	if err != nil {
		return nil, err
	}
	newAttrs, err := parseAttrPairs(setNew)
	if err != nil {
		return nil, err
	}
	return service.ParseAction(name, service.ResolveOptions{
		MergeFields:   fields,
		ExistingAttrs: existing,
		NewAttrs:      newAttrs,
	})
}

func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("expected field=value, got %q", p)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func parseAttrPairs(pairs []string) (map[string]any, error) {
	kv, err := parsePairs(pairs)
	if err != nil || kv == nil {
		return nil, err
	}
	out := make(map[string]any, len(kv))
	for k, v := range kv {
		out[k] = v
	}
	return out, nil
}
