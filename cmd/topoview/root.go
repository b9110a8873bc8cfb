package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-topoview/internal/config"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/datasetcache"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/logger"
	"github.com/kubilitics/kubilitics-topoview/internal/repository"
	"github.com/kubilitics/kubilitics-topoview/internal/service"
	"github.com/kubilitics/kubilitics-topoview/internal/topology"
	"github.com/kubilitics/kubilitics-topoview/internal/tui"
)

type app struct {
	view       string
	namespace  string
	file       string
	kubeconfig string
	context    string
	db         string
	configPath string
	logFile    string

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "topoview",
		Short:         "Interactive cluster topology viewer",
		Long:          "topoview renders the cluster, network-policy and health views of a dataset file or a live cluster in the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runViewer(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&a.view, "view", topology.ViewCluster, "view to show: "+strings.Join(topology.Views(), ", "))
	cmd.PersistentFlags().StringVarP(&a.namespace, "namespace", "n", "", "restrict the view to one namespace")
	cmd.PersistentFlags().StringVarP(&a.file, "file", "f", "", "dataset file (JSON or YAML); reloaded on change")
	cmd.PersistentFlags().StringVar(&a.kubeconfig, "kubeconfig", "", "path to the kubeconfig file")
	cmd.PersistentFlags().StringVar(&a.context, "context", "", "kubeconfig context")
	cmd.PersistentFlags().StringVar(&a.db, "db", "", "sqlite file for pinned layouts (pins are not persisted when empty)")
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file with engine tuning")
	cmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "write logs to this file")

	cmd.AddCommand(newViewsCmd(a), newSnapshotCmd(a))
	return cmd
}

func newViewsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "List the available views",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, v := range topology.Views() {
				fmt.Fprintln(a.stdout, v)
			}
			return nil
		},
	}
}

func newSnapshotCmd(a *app) *cobra.Command {
	var ticks int
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Settle the layout headlessly and print the resulting frame as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSnapshot(cmd.Context(), ticks)
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", service.DefaultSnapshotTicks, "simulation ticks to run before rendering")
	return cmd
}

// env holds what both the viewer and the snapshot command need.
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	datasets service.DatasetService
	layouts  repository.LayoutRepository
	closers  []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

func (a *app) setup() (*env, error) {
	if _, err := topology.NewVariant(a.view); err != nil {
		return nil, err
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg}

	// The terminal belongs to the viewer; logs go to a file or nowhere.
	e.log = slog.New(slog.DiscardHandler)
	if a.logFile != "" {
		f, err := os.OpenFile(a.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		e.closers = append(e.closers, f.Close)
		e.log = logger.New(f, cfg.LogLevel, cfg.LogFormat == "json")
	}

	e.datasets = service.NewDatasetService(
		datasetcache.New(cfg.DatasetCacheSize, time.Duration(cfg.DatasetCacheTTLSec)*time.Second),
		e.log,
	)
	if a.db != "" {
		repo, err := repository.Open("sqlite", a.db, "")
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("open layout store: %w", err)
		}
		e.closers = append(e.closers, repo.Close)
		e.layouts = repo
	}
	return e, nil
}

// loadConfig reads --config when given and lets flags override the
// cluster settings it carries.
func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if a.kubeconfig != "" {
		cfg.KubeconfigPath = a.kubeconfig
	}
	if a.context != "" {
		cfg.KubeContext = a.context
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (a *app) runViewer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := a.setup()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	feedErr := make(chan error, 1)
	go func() {
		err := a.feed(ctx, e)
		if err != nil {
			cancel()
		}
		feedErr <- err
	}()

	opts := e.cfg.EngineOptions()
	opts.Logger = e.log
	err = tui.Run(ctx, tui.Options{
		View:      a.view,
		Namespace: a.namespace,
		Datasets:  e.datasets,
		Layouts:   e.layouts,
		Engine:    opts,
	})
	stop()
	if ferr := <-feedErr; err == nil && ferr != nil {
		err = ferr
	}
	return err
}

func (a *app) runSnapshot(ctx context.Context, ticks int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := a.setup()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := a.publishOnce(ctx, e); err != nil {
		return err
	}
	opts := e.cfg.EngineOptions()
	opts.Logger = e.log
	frame, err := service.RenderSnapshot(ctx, e.datasets, e.layouts, a.view, a.namespace, ticks, opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(frame)
}
