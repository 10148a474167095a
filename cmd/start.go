package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dimiro1/banner"
	"github.com/mattn/go-colorable"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aitweaker/tweakd/pkg/model"
	"github.com/aitweaker/tweakd/pkg/provider"
	"github.com/aitweaker/tweakd/pkg/proxy"
	"github.com/aitweaker/tweakd/pkg/rules"
	"github.com/aitweaker/tweakd/pkg/runtime"
	"github.com/aitweaker/tweakd/pkg/service"
	"github.com/aitweaker/tweakd/pkg/store"
)

const startBanner = `{{ .AnsiColor.BrightCyan }}{{ .Title "tweakd" "" 2 }}{{ .AnsiColor.Default }}
  configuration store on :%d serving %s
`

var (
	serviceProvider string
	syncProvider    string
	httpServicePort int32
)

func findService(name string, state *store.State, persister service.Persister, mgr *proxy.Manager, feed *rules.Syncer) (service.IService, error) {
	registeredServices := map[string]service.IService{
		"http": &service.HTTPService{
			HTTPServiceConfiguration: &service.HTTPServiceConfiguration{
				Port:     httpServicePort,
				CertPath: viper.GetString("cert-path"),
			},
			State:     state,
			Persister: persister,
			Proxy:     mgr,
			Rules:     feed,
			Registry:  prometheus.NewRegistry(),
		},
	}
	v, ok := registeredServices[name]
	if !ok {
		return nil, errors.New("no service-provider set")
	}
	log.Debugf("Using %s service-provider", name)
	return v, nil
}

func findProvider(name string) (*provider.FilePathProvider, error) {
	registeredSync := map[string]*provider.FilePathProvider{
		"filepath": {
			URI: viper.GetString("uri"),
		},
	}
	v, ok := registeredSync[name]
	if !ok {
		return nil, errors.New("no sync-provider set")
	}
	log.Debugf("Using %s sync-provider", name)
	return v, nil
}

// startCmd runs the configuration store.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Serve the configuration store",
	Long: `start serves the profiles file over HTTP, keeps the rules file the proxy
addon reads in step with it, and starts or stops the proxy on request.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		providerImpl, err := findProvider(syncProvider)
		if err != nil {
			return err
		}

		state := store.NewState()
		mgr := proxy.NewManager(strings.Fields(viper.GetString("proxy-command")), viper.GetString("proxy-dir"), model.DefaultPort)

		feed := rules.NewSyncer(state, viper.GetString("rules"))

		serviceImpl, err := findService(serviceProvider, state, providerImpl, mgr, feed)
		if err != nil {
			return err
		}

		banner.InitString(colorable.NewColorableStdout(), true, true,
			fmt.Sprintf(startBanner, httpServicePort, providerImpl.URI))

		rt := &runtime.Runtime{
			Provider:  providerImpl,
			State:     state,
			Service:   serviceImpl,
			Proxy:     mgr,
			Rules:     feed,
			RulesPath: viper.GetString("rules"),
			ProxyLog:  viper.GetString("proxy-log"),
		}
		return rt.Start(cmd.Context())
	},
}

func defaultCertPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mitmproxy", "mitmproxy-ca-cert.pem")
}

func init() {
	startCmd.Flags().Int32VarP(&httpServicePort, "port", "p", 8000, "Port to listen on")
	startCmd.Flags().StringVarP(&serviceProvider, "service-provider", "s", "http", "Set a serve provider e.g. http")
	startCmd.Flags().StringVarP(&syncProvider, "sync-provider", "y", "filepath", "Set a sync provider e.g. filepath")
	startCmd.Flags().StringP("uri", "f", "profiles.json", "Profiles file to serve, created with defaults when missing")
	startCmd.Flags().String("rules", "rules.json", "Rules file written for the proxy addon")
	startCmd.Flags().String("cert-path", defaultCertPath(), "Proxy CA certificate served on /cert")
	startCmd.Flags().String("proxy-command", strings.Join(proxy.DefaultCommand, " "), "Command that runs the proxy, {port} is replaced")
	startCmd.Flags().String("proxy-dir", "", "Working directory of the proxy command")
	startCmd.Flags().String("proxy-log", "", "Log file of an externally run proxy to stream on /ws/logs")

	for _, name := range []string{"uri", "rules", "cert-path", "proxy-command", "proxy-dir", "proxy-log"} {
		if err := viper.BindPFlag(name, startCmd.Flags().Lookup(name)); err != nil {
			log.Fatal(err)
		}
	}
	rootCmd.AddCommand(startCmd)
}
