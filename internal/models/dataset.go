package models

// Entity kinds. They double as item layer names and focus handler names.
const (
	KindPod          = "pod"
	KindService      = "service"
	KindReplicaSet   = "replicaSet"
	KindStatefulSet  = "statefulSet"
	KindDaemonSet    = "daemonSet"
	KindDeployment   = "deployment"
	KindAllowedRoute = "allowedRoute"
)

// ObjectRef identifies a namespaced resource.
type ObjectRef struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// Key returns the namespace/name identity used as datum id.
func (r ObjectRef) Key() string {
	return r.Namespace + "/" + r.Name
}

// Pod is a pod as seen by the topology and network policy views.
type Pod struct {
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Highlighted bool   `json:"highlighted,omitempty"`
}

// Ref returns the pod identity.
func (p Pod) Ref() ObjectRef { return ObjectRef{Namespace: p.Namespace, Name: p.Name} }

// Service targets pods through its selector.
type Service struct {
	Namespace   string      `json:"namespace"`
	Name        string      `json:"name"`
	DisplayName string      `json:"displayName"`
	TargetPods  []ObjectRef `json:"targetPods"`
}

// Ref returns the service identity.
func (s Service) Ref() ObjectRef { return ObjectRef{Namespace: s.Namespace, Name: s.Name} }

// Controller is a ReplicaSet, StatefulSet or DaemonSet owning pods.
type Controller struct {
	Namespace   string      `json:"namespace"`
	Name        string      `json:"name"`
	DisplayName string      `json:"displayName"`
	TargetPods  []ObjectRef `json:"targetPods"`
}

// Ref returns the controller identity.
func (c Controller) Ref() ObjectRef { return ObjectRef{Namespace: c.Namespace, Name: c.Name} }

// Deployment owns replica sets.
type Deployment struct {
	Namespace         string      `json:"namespace"`
	Name              string      `json:"name"`
	DisplayName       string      `json:"displayName"`
	TargetReplicaSets []ObjectRef `json:"targetReplicaSets"`
}

// Ref returns the deployment identity.
func (d Deployment) Ref() ObjectRef { return ObjectRef{Namespace: d.Namespace, Name: d.Name} }

// AllowedRoute is a pod to pod flow permitted by network policies.
type AllowedRoute struct {
	SourcePod ObjectRef `json:"sourcePod"`
	TargetPod ObjectRef `json:"targetPod"`
	// Ports is empty when every port is allowed.
	Ports []int32 `json:"ports,omitempty"`
}

// PodHealth summarizes container states of one pod.
type PodHealth struct {
	Namespace                string `json:"namespace"`
	Name                     string `json:"name"`
	DisplayName              string `json:"displayName"`
	Containers               int    `json:"containers"`
	ContainersRunning        int    `json:"containersRunning"`
	ContainersReady          int    `json:"containersReady"`
	ContainersWithoutRestart int    `json:"containersWithoutRestart"`
}

// Ref returns the pod identity.
func (h PodHealth) Ref() ObjectRef { return ObjectRef{Namespace: h.Namespace, Name: h.Name} }

// Score is the fraction of healthy container checks in [0,1]. A pod without
// containers counts as healthy.
func (h PodHealth) Score() float64 {
	if h.Containers == 0 {
		return 1
	}
	ok := h.ContainersRunning + h.ContainersReady + h.ContainersWithoutRestart
	return float64(ok) / float64(3*h.Containers)
}

// ServiceLink is the source record of a service to pod link.
type ServiceLink struct {
	Service Service   `json:"service"`
	Pod     ObjectRef `json:"pod"`
}

// ControllerLink is the source record of a controller to pod link.
type ControllerLink struct {
	Kind       string     `json:"kind"`
	Controller Controller `json:"controller"`
	Pod        ObjectRef  `json:"pod"`
}

// DeploymentLink is the source record of a deployment to replica set link.
type DeploymentLink struct {
	Deployment Deployment `json:"deployment"`
	ReplicaSet ObjectRef  `json:"replicaSet"`
}

// Dataset is the filtered cluster analysis consumed by every view.
type Dataset struct {
	Pods          []Pod          `json:"pods"`
	Services      []Service      `json:"services"`
	ReplicaSets   []Controller   `json:"replicaSets"`
	StatefulSets  []Controller   `json:"statefulSets"`
	DaemonSets    []Controller   `json:"daemonSets"`
	Deployments   []Deployment   `json:"deployments"`
	AllowedRoutes []AllowedRoute `json:"allowedRoutes"`
	PodHealths    []PodHealth    `json:"podHealths"`
}

// FilterNamespace returns a copy restricted to one namespace. Routes are kept
// when either end lives in the namespace, and their other end is kept with them
// so that the route still resolves. An empty namespace returns d unchanged.
func (d *Dataset) FilterNamespace(namespace string) *Dataset {
	if d == nil || namespace == "" {
		return d
	}
	in := func(ns string) bool { return ns == namespace }

	out := &Dataset{}
	peers := map[string]bool{}
	for _, r := range d.AllowedRoutes {
		if in(r.SourcePod.Namespace) || in(r.TargetPod.Namespace) {
			out.AllowedRoutes = append(out.AllowedRoutes, r)
			peers[r.SourcePod.Key()] = true
			peers[r.TargetPod.Key()] = true
		}
	}
	for _, p := range d.Pods {
		if in(p.Namespace) || peers[p.Ref().Key()] {
			out.Pods = append(out.Pods, p)
		}
	}
	for _, s := range d.Services {
		if in(s.Namespace) {
			out.Services = append(out.Services, s)
		}
	}
	filterControllers := func(src []Controller) []Controller {
		var res []Controller
		for _, c := range src {
			if in(c.Namespace) {
				res = append(res, c)
			}
		}
		return res
	}
	out.ReplicaSets = filterControllers(d.ReplicaSets)
	out.StatefulSets = filterControllers(d.StatefulSets)
	out.DaemonSets = filterControllers(d.DaemonSets)
	for _, dep := range d.Deployments {
		if in(dep.Namespace) {
			out.Deployments = append(out.Deployments, dep)
		}
	}
	for _, h := range d.PodHealths {
		if in(h.Namespace) {
			out.PodHealths = append(out.PodHealths, h)
		}
	}
	return out
}
