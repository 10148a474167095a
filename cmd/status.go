package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aitweaker/tweakd/pkg/configsync"
	"github.com/aitweaker/tweakd/pkg/provider"
)

var (
	statusWatch    bool
	statusInterval time.Duration
	controlPort    int
	certOut        string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the proxy runs, on which port and at which address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := storeClient()
		out := cmd.OutOrStdout()
		if !statusWatch {
			return printStatus(cmd.Context(), client, out)
		}

		c := cron.New()
		err := c.AddFunc("@every "+statusInterval.String(), func() {
			if err := printStatus(cmd.Context(), client, out); err != nil {
				log.Errorf("status: %v", err)
			}
		})
		if err != nil {
			return err
		}
		if err := printStatus(cmd.Context(), client, out); err != nil {
			log.Errorf("status: %v", err)
		}
		c.Start()
		defer c.Stop()
		<-cmd.Context().Done()
		return nil
	},
}

func printStatus(ctx context.Context, client *provider.HTTPProvider, w io.Writer) error {
	st, err := client.Status(ctx)
	if err != nil {
		return err
	}
	state := "stopped"
	if st.Running {
		state = "running"
	}
	_, err = fmt.Fprintf(w, "proxy %s on %s:%d\n", state, st.IP, st.Port)
	return err
}

var portCmd = &cobra.Command{
	Use:   "port <port>",
	Short: "Set the proxy port of the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		return withEngine(cmd.Context(), storeClient(), func(e *configsync.Engine) error {
			if err := e.Do(cmd.Context(), "port "+args[0], configsync.SetProxyPort(port)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "proxy port set to %d, restart the proxy to apply\n", port)
			return nil
		})
	},
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Start or stop the interception proxy through the store",
}

func controlCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: fmt.Sprintf("Ask the store to %s the proxy", action),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := storeClient()
			port := controlPort
			if port == 0 {
				cfg, err := client.Fetch(cmd.Context())
				if err != nil {
					return err
				}
				active, _ := cfg.Active()
				port = active.ProxyPort
			}
			if err := client.Control(cmd.Context(), action, port); err != nil {
				return err
			}
			return printStatus(cmd.Context(), client, cmd.OutOrStdout())
		},
	}
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Download the proxy CA certificate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if certOut == "" || certOut == "-" {
			return storeClient().Cert(cmd.Context(), cmd.OutOrStdout())
		}
		f, err := os.Create(certOut)
		if err != nil {
			return err
		}
		if err := storeClient().Cert(cmd.Context(), f); err != nil {
			f.Close()
			os.Remove(certOut)
			return err
		}
		return f.Close()
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "keep polling until interrupted")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", 5*time.Second, "poll interval for --watch")
	proxyCmd.PersistentFlags().IntVarP(&controlPort, "port", "p", 0, "proxy port (default is the active profile's port)")
	certCmd.Flags().StringVarP(&certOut, "output", "o", "mitmproxy-ca-cert.pem", "where to write the certificate, - for stdout")

	proxyCmd.AddCommand(controlCmd("start"), controlCmd("stop"))
	rootCmd.AddCommand(statusCmd, portCmd, proxyCmd, certCmd)
}
