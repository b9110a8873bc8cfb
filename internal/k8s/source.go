package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/metrics"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/tracing"
)

// Source keeps informer caches of the objects a dataset is built from and
// rebuilds the dataset when any of them changes.
type Source struct {
	factory   informers.SharedInformerFactory
	namespace string // "" = all namespaces
	debounce  time.Duration
	log       *slog.Logger

	notifyCh chan struct{}
	stopCh   chan struct{}
	once     sync.Once
}

// NewSource creates a Source. resync is the period between full re-list syncs
// (0 = disabled); debounce coalesces bursts of changes into one rebuild.
func NewSource(clientset kubernetes.Interface, namespace string, resync, debounce time.Duration, log *slog.Logger) *Source {
	var factory informers.SharedInformerFactory
	if namespace == "" {
		factory = informers.NewSharedInformerFactory(clientset, resync)
	} else {
		factory = informers.NewSharedInformerFactoryWithOptions(
			clientset, resync,
			informers.WithNamespace(namespace),
		)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Source{
		factory:   factory,
		namespace: namespace,
		debounce:  debounce,
		log:       log,
		notifyCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start registers the informers, starts them and waits for the initial sync.
func (s *Source) Start(ctx context.Context) error {
	handler := cache.ResourceEventHandlerFuncs{
		AddFunc:    func(_ any) { s.notify() },
		UpdateFunc: func(_, _ any) { s.notify() },
		DeleteFunc: func(_ any) { s.notify() },
	}
	for _, inf := range []cache.SharedIndexInformer{
		s.factory.Core().V1().Pods().Informer(),
		s.factory.Core().V1().Services().Informer(),
		s.factory.Core().V1().Namespaces().Informer(),
		s.factory.Apps().V1().ReplicaSets().Informer(),
		s.factory.Apps().V1().StatefulSets().Informer(),
		s.factory.Apps().V1().DaemonSets().Informer(),
		s.factory.Apps().V1().Deployments().Informer(),
		s.factory.Networking().V1().NetworkPolicies().Informer(),
	} {
		if _, err := inf.AddEventHandler(handler); err != nil {
			return fmt.Errorf("register informer handler: %w", err)
		}
	}
	s.factory.Start(s.stopCh)
	synced := s.factory.WaitForCacheSync(ctx.Done())
	for typ, ok := range synced {
		if !ok {
			return fmt.Errorf("informer cache sync failed for %v", typ)
		}
	}
	return nil
}

// Stop shuts down the informer goroutines. Safe to call multiple times.
func (s *Source) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

func (s *Source) notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default: // already pending
	}
}

// Snapshot builds a dataset from the informer caches.
func (s *Source) Snapshot(ctx context.Context) (*models.Dataset, error) {
	_, span := tracing.StartSpan(ctx, "dataset.build")
	defer span.End()
	start := time.Now()
	defer func() { metrics.DatasetBuildDurationSeconds.Observe(time.Since(start).Seconds()) }()

	all := labels.Everything()
	var (
		o   Objects
		err error
	)
	if o.Pods, err = s.factory.Core().V1().Pods().Lister().List(all); err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}
	if o.Services, err = s.factory.Core().V1().Services().Lister().List(all); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	if o.Namespaces, err = s.factory.Core().V1().Namespaces().Lister().List(all); err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	if o.ReplicaSets, err = s.factory.Apps().V1().ReplicaSets().Lister().List(all); err != nil {
		return nil, fmt.Errorf("list replica sets: %w", err)
	}
	if o.StatefulSets, err = s.factory.Apps().V1().StatefulSets().Lister().List(all); err != nil {
		return nil, fmt.Errorf("list stateful sets: %w", err)
	}
	if o.DaemonSets, err = s.factory.Apps().V1().DaemonSets().Lister().List(all); err != nil {
		return nil, fmt.Errorf("list daemon sets: %w", err)
	}
	if o.Deployments, err = s.factory.Apps().V1().Deployments().Lister().List(all); err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	if o.NetworkPolicies, err = s.factory.Networking().V1().NetworkPolicies().Lister().List(all); err != nil {
		return nil, fmt.Errorf("list network policies: %w", err)
	}
	return Build(o), nil
}

// Run publishes a dataset now and after every debounced burst of changes,
// until ctx is cancelled or the source is stopped.
func (s *Source) Run(ctx context.Context, publish func(*models.Dataset)) error {
	build := func() {
		ds, err := s.Snapshot(ctx)
		if err != nil {
			s.log.Error("dataset build failed", "error", err)
			return
		}
		publish(ds)
	}
	build()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-s.notifyCh:
			if fire == nil {
				timer = time.NewTimer(s.debounce)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			build()
		}
	}
}
