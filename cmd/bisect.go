package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aitweaker/tweakd/pkg/bisect"
	"github.com/aitweaker/tweakd/pkg/configsync"
	"github.com/aitweaker/tweakd/pkg/model"
)

var bisectApp string

var bisectCmd = &cobra.Command{
	Use:   "bisect",
	Short: "Find the flag in a numeric range that causes a behavior",
	Long: `bisect injects the lower half of a flag range as one range flag and asks
whether the behavior is still there. Answer with "bisect present" or
"bisect absent" after checking the app; the session is kept on disk between
answers, so there is no time limit.`,
}

func checkpointPath() string {
	return filepath.Join(viper.GetString("state-dir"), "bisect.json")
}

func parseBounds(args []string) (int, int, error) {
	if len(args) == 1 {
		r, err := model.ParseRange(args[0])
		if err != nil {
			return 0, 0, err
		}
		return r.Start, r.End, nil
	}
	start, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start %q", args[0])
	}
	end, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end %q", args[1])
	}
	return start, end, nil
}

// park saves an open session and clears the checkpoint of a finished one.
func park(s *bisect.Session) error {
	if s.State.Terminal() {
		return bisect.ClearCheckpoint(checkpointPath())
	}
	if err := os.MkdirAll(viper.GetString("state-dir"), 0o755); err != nil {
		return err
	}
	return bisect.SaveCheckpoint(checkpointPath(), s.Checkpoint())
}

func report(w io.Writer, s *bisect.Session) {
	switch s.State {
	case bisect.AwaitingFeedback:
		fmt.Fprintf(w, "step %d: injected %s (range [%d, %d)). Check the app, then run `tweakd bisect present` or `tweakd bisect absent`.\n",
			len(s.History), s.Candidate, s.RangeStart, s.RangeEnd)
	case bisect.Converged:
		fmt.Fprintf(w, "isolated flag %s after %d steps\n", s.Result, s.StepsTaken())
	case bisect.Aborted:
		if s.Candidate != "" {
			fmt.Fprintf(w, "bisect aborted, %s is still injected\n", s.Candidate)
			return
		}
		fmt.Fprintln(w, "bisect aborted")
	default:
		fmt.Fprintf(w, "bisect %s\n", s.State)
	}
}

var bisectStartCmd = &cobra.Command{
	Use:   "start <start> <end> | start <start-end>",
	Short: "Start searching the half-open range [start, end)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := parseBounds(args)
		if err != nil {
			return err
		}
		if cp, err := bisect.LoadCheckpoint(checkpointPath()); err == nil && !cp.State.Terminal() {
			return fmt.Errorf("a bisect over [%d, %d) is in progress, run `tweakd bisect abort` first", cp.RangeStart, cp.RangeEnd)
		}
		return withEngine(cmd.Context(), storeClient(), func(e *configsync.Engine) error {
			s := bisect.New(e, bisectApp)
			if err := s.Start(cmd.Context(), start, end); err != nil {
				return err
			}
			report(cmd.OutOrStdout(), s)
			return park(s)
		})
	},
}

func verdictCmd(v bisect.Verdict, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(v),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := loadSession()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), storeClient(), func(e *configsync.Engine) error {
				s, err := bisect.Restore(e, cp)
				if err != nil {
					return err
				}
				if err := s.Resume(cmd.Context()); err != nil {
					return err
				}
				if err := s.Feedback(cmd.Context(), v); err != nil {
					return err
				}
				report(cmd.OutOrStdout(), s)
				return park(s)
			})
		},
	}
}

func loadSession() (bisect.Checkpoint, error) {
	cp, err := bisect.LoadCheckpoint(checkpointPath())
	if errors.Is(err, os.ErrNotExist) {
		return cp, errors.New("no bisect in progress, run `tweakd bisect start` first")
	}
	return cp, err
}

var bisectAbortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Stop the search and leave the current candidate injected",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, err := loadSession()
		if err != nil {
			return err
		}
		s, err := bisect.Restore(nil, cp)
		if err != nil {
			return err
		}
		if err := s.Abort(); err != nil {
			return err
		}
		report(cmd.OutOrStdout(), s)
		return park(s)
	},
}

var bisectStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session in progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, err := loadSession()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "session %s on %s\n", cp.ID, cp.App)
		for i, st := range cp.History {
			fmt.Fprintf(out, "  %d. %s: %s\n", i+1, st.Candidate, st.Verdict)
		}
		s, err := bisect.Restore(nil, cp)
		if err != nil {
			return err
		}
		report(out, s)
		return nil
	},
}

func init() {
	bisectCmd.PersistentFlags().StringVarP(&bisectApp, "app", "a", "gemini", "app whose flags are searched")
	bisectCmd.AddCommand(
		bisectStartCmd,
		verdictCmd(bisect.Present, "The behavior is still there with the current candidate"),
		verdictCmd(bisect.Absent, "The behavior is gone with the current candidate"),
		bisectAbortCmd,
		bisectStatusCmd,
	)
	rootCmd.AddCommand(bisectCmd)
}
