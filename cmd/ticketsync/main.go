package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ticketsync/internal/sync"
	"github.com/ajitpratap0/ticketsync/pkg/catalog"
	"github.com/ajitpratap0/ticketsync/pkg/clients"
	"github.com/ajitpratap0/ticketsync/pkg/config"
	"github.com/ajitpratap0/ticketsync/pkg/emitter"
	"github.com/ajitpratap0/ticketsync/pkg/logger"
	"github.com/ajitpratap0/ticketsync/pkg/metrics"
	"github.com/ajitpratap0/ticketsync/pkg/observability"
	"github.com/ajitpratap0/ticketsync/pkg/state"
	"github.com/ajitpratap0/ticketsync/pkg/statestore"
	"github.com/ajitpratap0/ticketsync/pkg/streams"
	"github.com/ajitpratap0/ticketsync/pkg/zendesk"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every command builds from the configuration file.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	registry   *streams.Registry
	metrics    *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{registry: streams.DefaultRegistry()}

	root := &cobra.Command{
		Use:           "ticketsync",
		Short:         "ticketsync - incremental Zendesk replication",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `ticketsync replicates Zendesk Support entities as a stream of SCHEMA,
RECORD and STATE messages, resuming each run from the bookmarks of the last one.`,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the YAML or JSON configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ticketsync v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "streams",
		Short: "List the replicated streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listStreams(cmd)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "discover",
		Short: "Write the catalog of every stream to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			return a.discover(cmd)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify the credentials can read every stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			return a.check(cmd)
		},
	})

	var catalogPath, statePath string
	var selectNames []string
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Replicate the selected streams",
		Long: `Replicate every stream selected in the catalog. Messages are written to the
configured emitter and the final state is persisted to the configured state store.

Example:
  ticketsync sync --config config.yaml --catalog catalog.json --state state.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			return a.sync(cmd, catalogPath, statePath, selectNames)
		},
	}
	syncCmd.Flags().StringVar(&catalogPath, "catalog", "", "Path to the catalog file (required)")
	syncCmd.Flags().StringVar(&statePath, "state", "", "Path to a state file overriding the configured state store on load")
	syncCmd.Flags().StringSliceVar(&selectNames, "select", nil, "Additional streams to mark selected")
	_ = syncCmd.MarkFlagRequired("catalog")
	root.AddCommand(syncCmd)

	return root
}

// setup loads the configuration and initializes the global logger.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	a.cfg = cfg

	logCfg := logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	}
	if err := logger.Init(logCfg); err != nil {
		return err
	}
	a.logger = logger.Get().With(zap.String("component", "ticketsync-cli"))
	a.metrics = prometheus.NewRegistry()
	return nil
}

func (a *app) newClient() (*zendesk.Client, *clients.HTTPClient) {
	httpClient := clients.NewHTTPClient(clients.HTTPConfigFrom(a.cfg), a.logger, a.metrics)
	client := zendesk.NewClient(httpClient, a.cfg.Source.APIBaseURL(),
		zendesk.WithPageSize(a.cfg.Source.PageSize),
		zendesk.WithLogger(a.logger))
	return client, httpClient
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) listStreams(cmd *cobra.Command) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STREAM\tSTRATEGY\tREPLICATION KEY\tPARENT")
	for _, name := range a.registry.Names() {
		d, _ := a.registry.Lookup(name)
		parent, _ := a.registry.ParentOf(name)
		key := d.ReplicationKey
		if key == "" {
			key = "-"
		}
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, d.Strategy, key, parent)
	}
	return w.Flush()
}

func (a *app) discover(cmd *cobra.Command) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, httpClient := a.newClient()
	defer httpClient.Close()

	cat, err := catalog.Discover(ctx, a.registry, client, a.logger)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	return cat.Write(cmd.OutOrStdout())
}

func (a *app) check(cmd *cobra.Command) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, httpClient := a.newClient()
	defer httpClient.Close()

	now := time.Now()
	var failed int
	for _, name := range a.registry.Names() {
		d, _ := a.registry.Lookup(name)
		if err := streams.CheckAccess(ctx, client, d, now); err != nil {
			failed++
			a.logger.Error("access check failed", zap.String("stream", name), zap.Error(err))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED (%v)\n", name, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("access check failed for %d stream(s)", failed)
	}
	return nil
}

func (a *app) sync(cmd *cobra.Command, catalogPath, statePath string, selectNames []string) (err error) {
	ctx, cancel := signalContext()
	defer cancel()

	runID := uuid.NewString()
	ctx = logger.ContextWithRunID(ctx, runID)
	log := logger.FromContext(ctx, a.logger)
	resources := observability.NewResourceMonitor()

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return err
	}
	if err := cat.Select(selectNames...); err != nil {
		return err
	}
	if err := sync.ValidateDependencies(a.registry, cat.Selected()); err != nil {
		return err
	}
	startDate, err := a.cfg.StartTime()
	if err != nil {
		return err
	}

	tracing, err := observability.NewTracing(ctx, observability.TracingConfig{
		Enabled:        a.cfg.Observability.EnableTracing,
		ServiceName:    "ticketsync",
		ServiceVersion: version,
		SamplingRate:   a.cfg.Observability.TracingSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	if a.cfg.Observability.EnableMetrics {
		server := observability.NewMetricsServer(a.cfg.Observability.MetricsAddr, a.metrics, log)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() { _ = server.Shutdown(context.Background()) }()
	}

	store, err := statestore.Open(ctx, a.cfg.State, log)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := a.loadState(ctx, store, statePath, log)
	if err != nil {
		return err
	}

	em, err := emitter.New(a.cfg.Output, cmd.OutOrStdout(), log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := em.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	client, httpClient := a.newClient()
	defer httpClient.Close()

	orch := sync.New(a.registry, client, em,
		sync.WithStore(store),
		sync.WithRecorder(metrics.NewRecorder(a.metrics, log)),
		sync.WithTracing(tracing),
		sync.WithLogger(log))

	ctx, span := tracing.StartRun(ctx, "sync")
	err = orch.Run(ctx, cat, st, startDate)
	span.End(err)

	total, failedRequests := httpClient.Stats()
	log.Info("http totals", zap.Int64("requests", total), zap.Int64("failed", failedRequests))
	resources.Log(log)
	return err
}

// loadState reads the --state file when given, otherwise the configured store.
func (a *app) loadState(ctx context.Context, store *statestore.Store, statePath string, log *zap.Logger) (*state.State, error) {
	if statePath == "" {
		return store.Load(ctx)
	}
	override, err := statestore.OpenFile(statePath, a.cfg.State.Compression, log)
	if err != nil {
		return nil, err
	}
	defer override.Close()
	return override.Load(ctx)
}
