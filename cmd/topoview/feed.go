package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kubilitics/kubilitics-topoview/internal/api/rest"
	"github.com/kubilitics/kubilitics-topoview/internal/k8s"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/service"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 100 * time.Millisecond

// loadDatasetFile reads and validates a dataset document.
func loadDatasetFile(path string) (*models.Dataset, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	ds, err := rest.DecodeDataset(body)
	if err != nil {
		return nil, err
	}
	if problems := rest.ValidateDataset(ds); len(problems) > 0 {
		keys := make([]string, 0, len(problems))
		for k := range problems {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		msgs := make([]string, 0, len(keys))
		for _, k := range keys {
			msgs = append(msgs, k+": "+problems[k])
		}
		return nil, fmt.Errorf("invalid dataset %s: %s", path, strings.Join(msgs, "; "))
	}
	return ds, nil
}

// publishOnce publishes a single dataset from the file or the cluster.
func (a *app) publishOnce(ctx context.Context, e *env) error {
	if a.file != "" {
		ds, err := loadDatasetFile(a.file)
		if err != nil {
			return err
		}
		e.datasets.Publish(ctx, ds)
		return nil
	}
	src, err := a.clusterSource(ctx, e)
	if err != nil {
		return err
	}
	defer src.Stop()
	ds, err := src.Snapshot(ctx)
	if err != nil {
		return err
	}
	e.datasets.Publish(ctx, ds)
	return nil
}

// feed keeps publishing datasets until ctx is done.
func (a *app) feed(ctx context.Context, e *env) error {
	if a.file != "" {
		return watchDatasetFile(ctx, a.file, e.datasets, e.log)
	}
	src, err := a.clusterSource(ctx, e)
	if err != nil {
		return err
	}
	defer src.Stop()
	err = src.Run(ctx, func(ds *models.Dataset) { e.datasets.Publish(ctx, ds) })
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) clusterSource(ctx context.Context, e *env) (*k8s.Source, error) {
	clientset, err := k8s.NewClientset(e.cfg.KubeconfigPath, e.cfg.KubeContext)
	if err != nil {
		return nil, err
	}
	src := k8s.NewSource(clientset, a.namespace,
		time.Duration(e.cfg.InformerResyncSec)*time.Second,
		time.Duration(e.cfg.RebuildDebounceMs)*time.Millisecond,
		e.log)
	syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := src.Start(syncCtx); err != nil {
		src.Stop()
		return nil, err
	}
	return src, nil
}

// watchDatasetFile publishes the file now and again after every change.
// The parent directory is watched so that editors which replace the file
// by rename are followed. A broken intermediate save is logged and the
// last good dataset stays published.
func watchDatasetFile(ctx context.Context, path string, datasets service.DatasetService, log *slog.Logger) error {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	// Watch before the first read so no change is missed.
	ds, err := loadDatasetFile(path)
	if err != nil {
		return err
	}
	datasets.Publish(ctx, ds)

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			reload = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("dataset watch error", "path", path, "error", err)
		case <-reload:
			reload = nil
			ds, err := loadDatasetFile(path)
			if err != nil {
				log.Warn("dataset reload failed", "path", path, "error", err)
				continue
			}
			gen := datasets.Publish(ctx, ds)
			log.Info("dataset reloaded", "path", path, "generation", gen)
		}
	}
}
