package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aitweaker/tweakd/pkg/logtail"
)

var logsExport string

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Stream proxy log lines until interrupted",
	Long: `logs prints proxy output as it arrives. The last 100 lines are kept;
with --export they are written to a file on exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		buf := logtail.NewBuffer(logtail.DefaultCapacity)
		out := cmd.OutOrStdout()
		consumer := &logtail.Consumer{
			URL:    logStreamURL(storeClient().BaseURL()),
			Buffer: buf,
			OnLine: func(line string) { fmt.Fprintln(out, line) },
		}
		log.Debugf("streaming logs from %s", consumer.URL)
		if err := consumer.Run(cmd.Context()); err != nil {
			return err
		}
		log.Debugf("kept %d of %d lines, %d older lines dropped", buf.Len(), buf.Cap(), buf.Dropped())
		if logsExport == "" {
			return nil
		}
		return os.WriteFile(logsExport, []byte(buf.Join()+"\n"), 0o644)
	},
}

// logStreamURL maps the store base URL onto its websocket log endpoint.
func logStreamURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/logs"
}

func init() {
	logsCmd.Flags().StringVarP(&logsExport, "export", "e", "", "write the buffered lines to this file on exit")
	rootCmd.AddCommand(logsCmd)
}
