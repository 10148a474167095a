package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aitweaker/tweakd/pkg/configsync"
	"github.com/aitweaker/tweakd/pkg/eval"
)

var (
	flagsApp   string
	listTerm   string
	listLogic  string
	listAsJSON bool
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "List and edit the flags injected for an app",
}

var flagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flags, optionally filtered by a search term or a JSONLogic rule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := storeClient().Fetch(cmd.Context())
		if err != nil {
			return err
		}
		filter := eval.Filter{Term: listTerm}
		if listLogic != "" {
			filter.Logic = json.RawMessage(listLogic)
		}
		app := cfg.App(flagsApp)
		matches, err := filter.Apply(app)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if listAsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(matches)
		}
		state := "enabled"
		if !app.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(out, "%s (%s), %d of %d flags\n", flagsApp, state, len(matches), len(app.FlagConfigs))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, m := range matches {
			mark := "off"
			if m.Entry.Enabled {
				mark = "on"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, mark, m.Entry.Note)
		}
		return tw.Flush()
	},
}

// editCmd builds a subcommand that issues one engine mutation per call.
func editCmd(use, short string, args cobra.PositionalArgs, mutate func(args []string) (string, configsync.Transform)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, t := mutate(args)
			return withEngine(cmd.Context(), storeClient(), func(e *configsync.Engine) error {
				if err := e.Do(cmd.Context(), name, t); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: done\n", name)
				return nil
			})
		},
	}
}

var flagsAddCmd = &cobra.Command{
	Use:   "add <id>...",
	Short: "Add flags, enabled with an empty note",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), storeClient(), func(e *configsync.Engine) error {
			for _, id := range args {
				if err := e.Do(cmd.Context(), "add "+id, configsync.AddFlag(flagsApp, id)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", id)
			}
			return nil
		})
	},
}

func init() {
	flagsCmd.PersistentFlags().StringVarP(&flagsApp, "app", "a", "gemini", "app whose flags to manage")
	flagsListCmd.Flags().StringVarP(&listTerm, "term", "t", "", "case-insensitive substring of the id or note")
	flagsListCmd.Flags().StringVar(&listLogic, "logic", "", `JSONLogic rule over {"id","note","enabled","range","start","end"}`)
	flagsListCmd.Flags().BoolVar(&listAsJSON, "json", false, "print matches as JSON")

	flagsCmd.AddCommand(
		flagsListCmd,
		flagsAddCmd,
		editCmd("remove <id>", "Remove a flag", cobra.ExactArgs(1), func(args []string) (string, configsync.Transform) {
			return "remove " + args[0], configsync.RemoveFlag(flagsApp, args[0])
		}),
		editCmd("toggle <id>", "Flip whether a flag is injected", cobra.ExactArgs(1), func(args []string) (string, configsync.Transform) {
			return "toggle " + args[0], configsync.ToggleFlag(flagsApp, args[0])
		}),
		editCmd("note <id> <note>", "Set the note of a flag", cobra.ExactArgs(2), func(args []string) (string, configsync.Transform) {
			return "note " + args[0], configsync.UpdateNote(flagsApp, args[0], args[1])
		}),
		editCmd("rename <old> <new>", "Change the id of a flag, keeping its note and state", cobra.ExactArgs(2), func(args []string) (string, configsync.Transform) {
			return fmt.Sprintf("rename %s to %s", args[0], args[1]), configsync.RenameFlag(flagsApp, args[0], args[1])
		}),
		editCmd("enable", "Enable injection for the app", cobra.NoArgs, func([]string) (string, configsync.Transform) {
			return "enable " + flagsApp, configsync.SetAppEnabled(flagsApp, true)
		}),
		editCmd("disable", "Disable injection for the app", cobra.NoArgs, func([]string) (string, configsync.Transform) {
			return "disable " + flagsApp, configsync.SetAppEnabled(flagsApp, false)
		}),
	)
	rootCmd.AddCommand(flagsCmd)
}
