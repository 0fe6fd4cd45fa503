package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"reelscout/internal/httputil"
	"reelscout/internal/resolver"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog runner as a resolver event stream",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address (default: server.listen)")
}

func serveRun(cmd *cobra.Command, args []string) error {
	addr := cfg.Server.Listen
	if flagListen != "" {
		addr = flagListen
	}

	client := httputil.NewClientWithOptions(httputil.ClientOptions{Fingerprint: cfg.Relay.Fingerprint})
	registry, _, err := newRegistry(cfg, client)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return resolver.New(registry, reg).ListenAndServe(cmd.Context(), addr)
}
