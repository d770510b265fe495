// Package cli implements the hioload-netio command line using Cobra.
// Each subcommand drives one kind of network task through a NetworkLoop.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-netio/control"
	"github.com/momentics/hioload-netio/internal/logging"
	"github.com/momentics/hioload-netio/netio"
	"github.com/momentics/hioload-netio/packet"
	"github.com/momentics/hioload-netio/pool"
)

var (
	configPath    string
	logLevel      string
	metricsListen string
)

// app is the state shared by subcommands, built in PersistentPreRunE.
type app struct {
	store   *control.Store
	log     *logging.Logger
	metrics *control.Metrics
	probes  *control.DebugProbes
	server  *http.Server
}

var current *app

var rootCmd = &cobra.Command{
	Use:   "hioload-netio",
	Short: "Drive the asynchronous network task engine from the command line",
	Long: `hioload-netio opens UDP ports, resolves endpoints and exchanges datagrams
through a single reactor goroutine. Configuration is read from TOML.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { teardown() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := control.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = metricsListen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	opts := logging.DefaultOptions()
	opts.Level = level
	opts.Writer = cmd.ErrOrStderr()

	a := &app{
		store:   control.NewStore(cfg, configPath),
		log:     logging.New(opts),
		metrics: control.NewMetrics(),
		probes:  control.NewDebugProbes(),
	}
	control.RegisterPlatformProbes(a.probes)
	if cfg.Metrics.Enabled {
		a.serveMetrics(cfg.Metrics.Listen)
	}
	current = a
	return nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
		data, err := a.probes.DumpJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Err().Err(err).Str("listen", addr).Log("metrics server failed")
		}
	}()
	a.log.Info().Str("listen", addr).Log("metrics server started")
}

func teardown() {
	if current == nil || current.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = current.server.Shutdown(ctx)
}

// newEngine builds factories sized from the config and starts a loop.
func (a *app) newEngine() (*netio.NetworkLoop, *packet.Factory, error) {
	cfg := a.store.Snapshot().Engine
	packets := packet.NewFactory(cfg.PoolSize)
	buffers := pool.NewBufferFactory(cfg.MaxPacketSize, cfg.PoolSize)
	nl, err := netio.NewNetworkLoop(packets, buffers,
		netio.WithEngineConfig(cfg),
		netio.WithLogger(a.log),
		netio.WithMetrics(a.metrics),
		netio.WithDebugProbes(a.probes),
	)
	if err != nil {
		return nil, nil, err
	}
	return nl, packets, nil
}
