package k8s

import (
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	v1 "k8s.io/api/core/v1"
	netv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

// Objects is a consistent snapshot of the cluster objects a dataset is built from.
type Objects struct {
	Pods            []*v1.Pod
	Services        []*v1.Service
	ReplicaSets     []*appsv1.ReplicaSet
	StatefulSets    []*appsv1.StatefulSet
	DaemonSets      []*appsv1.DaemonSet
	Deployments     []*appsv1.Deployment
	NetworkPolicies []*netv1.NetworkPolicy
	Namespaces      []*v1.Namespace
}

// Build derives the dataset of every view from a snapshot. Output order is
// deterministic (namespace, name).
func Build(o Objects) *models.Dataset {
	pods := sortedPods(o.Pods)
	ds := &models.Dataset{}

	for _, p := range pods {
		ds.Pods = append(ds.Pods, models.Pod{
			Namespace:   p.Namespace,
			Name:        p.Name,
			DisplayName: p.Name,
			Highlighted: p.Status.Phase != v1.PodRunning && p.Status.Phase != v1.PodSucceeded,
		})
		ds.PodHealths = append(ds.PodHealths, PodHealth(p))
	}

	for _, s := range o.Services {
		ds.Services = append(ds.Services, models.Service{
			Namespace:   s.Namespace,
			Name:        s.Name,
			DisplayName: s.Name,
			TargetPods:  selectedPods(pods, s.Namespace, s.Spec.Selector),
		})
	}
	sort.Slice(ds.Services, func(i, j int) bool { return lessRef(ds.Services[i].Ref(), ds.Services[j].Ref()) })

	ownedPods := podsByOwner(pods)
	for _, rs := range o.ReplicaSets {
		ds.ReplicaSets = append(ds.ReplicaSets, controller(rs.ObjectMeta, ownedPods["ReplicaSet"]))
	}
	for _, sts := range o.StatefulSets {
		ds.StatefulSets = append(ds.StatefulSets, controller(sts.ObjectMeta, ownedPods["StatefulSet"]))
	}
	for _, dset := range o.DaemonSets {
		ds.DaemonSets = append(ds.DaemonSets, controller(dset.ObjectMeta, ownedPods["DaemonSet"]))
	}
	for _, cs := range []*[]models.Controller{&ds.ReplicaSets, &ds.StatefulSets, &ds.DaemonSets} {
		sort.Slice(*cs, func(i, j int) bool { return lessRef((*cs)[i].Ref(), (*cs)[j].Ref()) })
	}

	ownedRS := map[models.ObjectRef][]models.ObjectRef{}
	for _, rs := range o.ReplicaSets {
		if ref := metav1.GetControllerOf(rs); ref != nil && ref.Kind == "Deployment" {
			owner := models.ObjectRef{Namespace: rs.Namespace, Name: ref.Name}
			ownedRS[owner] = append(ownedRS[owner], models.ObjectRef{Namespace: rs.Namespace, Name: rs.Name})
		}
	}
	for _, d := range o.Deployments {
		ref := models.ObjectRef{Namespace: d.Namespace, Name: d.Name}
		targets := ownedRS[ref]
		sort.Slice(targets, func(i, j int) bool { return lessRef(targets[i], targets[j]) })
		ds.Deployments = append(ds.Deployments, models.Deployment{
			Namespace:         d.Namespace,
			Name:              d.Name,
			DisplayName:       d.Name,
			TargetReplicaSets: targets,
		})
	}
	sort.Slice(ds.Deployments, func(i, j int) bool { return lessRef(ds.Deployments[i].Ref(), ds.Deployments[j].Ref()) })

	ds.AllowedRoutes = AllowedRoutes(pods, o.NetworkPolicies, o.Namespaces)
	return ds
}

func lessRef(a, b models.ObjectRef) bool {
	if a.Namespace != b.Namespace {
		return a.Namespace < b.Namespace
	}
	return a.Name < b.Name
}

func podRef(p *v1.Pod) models.ObjectRef {
	return models.ObjectRef{Namespace: p.Namespace, Name: p.Name}
}

func sortedPods(in []*v1.Pod) []*v1.Pod {
	pods := make([]*v1.Pod, len(in))
	copy(pods, in)
	sort.Slice(pods, func(i, j int) bool { return lessRef(podRef(pods[i]), podRef(pods[j])) })
	return pods
}

// selectedPods returns the pods of a namespace matched by a service selector.
// An empty selector selects nothing, as for services without selector.
func selectedPods(pods []*v1.Pod, namespace string, selector map[string]string) []models.ObjectRef {
	if len(selector) == 0 {
		return nil
	}
	sel := labels.SelectorFromSet(selector)
	var out []models.ObjectRef
	for _, p := range pods {
		if p.Namespace == namespace && sel.Matches(labels.Set(p.Labels)) {
			out = append(out, podRef(p))
		}
	}
	return out
}

// podsByOwner indexes pods by controller kind and owner ref.
func podsByOwner(pods []*v1.Pod) map[string]map[models.ObjectRef][]models.ObjectRef {
	out := map[string]map[models.ObjectRef][]models.ObjectRef{}
	for _, p := range pods {
		ref := metav1.GetControllerOf(p)
		if ref == nil {
			continue
		}
		if out[ref.Kind] == nil {
			out[ref.Kind] = map[models.ObjectRef][]models.ObjectRef{}
		}
		owner := models.ObjectRef{Namespace: p.Namespace, Name: ref.Name}
		out[ref.Kind][owner] = append(out[ref.Kind][owner], podRef(p))
	}
	return out
}

func controller(meta metav1.ObjectMeta, owned map[models.ObjectRef][]models.ObjectRef) models.Controller {
	ref := models.ObjectRef{Namespace: meta.Namespace, Name: meta.Name}
	return models.Controller{
		Namespace:   meta.Namespace,
		Name:        meta.Name,
		DisplayName: meta.Name,
		TargetPods:  owned[ref],
	}
}

// PodHealth summarizes the container statuses of a pod.
func PodHealth(p *v1.Pod) models.PodHealth {
	h := models.PodHealth{
		Namespace:   p.Namespace,
		Name:        p.Name,
		DisplayName: p.Name,
		Containers:  len(p.Spec.Containers),
	}
	for _, cs := range p.Status.ContainerStatuses {
		if cs.State.Running != nil {
			h.ContainersRunning++
		}
		if cs.Ready {
			h.ContainersReady++
		}
		if cs.RestartCount == 0 {
			h.ContainersWithoutRestart++
		}
	}
	return h
}
