package k8s

import (
	v1 "k8s.io/api/core/v1"
	netv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

type direction int

const (
	ingress direction = iota
	egress
)

// policyIndex answers which pod pairs network policies allow.
type policyIndex struct {
	policies []*netv1.NetworkPolicy
	nsLabels map[string]labels.Set
}

// AllowedRoutes lists the pod to pod routes that network policies allow.
// Pairs that no policy restricts on either side are left out: they are
// implicitly open and listing them would connect every pod to every other.
// Pods are expected in (namespace, name) order.
func AllowedRoutes(pods []*v1.Pod, policies []*netv1.NetworkPolicy, namespaces []*v1.Namespace) []models.AllowedRoute {
	if len(policies) == 0 {
		return nil
	}
	idx := policyIndex{policies: policies, nsLabels: map[string]labels.Set{}}
	for _, ns := range namespaces {
		idx.nsLabels[ns.Name] = labels.Set(ns.Labels)
	}

	var routes []models.AllowedRoute
	for _, src := range pods {
		egressPolicies := idx.selecting(src, egress)
		for _, dst := range pods {
			if src == dst {
				continue
			}
			ingressPolicies := idx.selecting(dst, ingress)
			if len(egressPolicies) == 0 && len(ingressPolicies) == 0 {
				continue
			}
			inOK, inPorts := idx.allows(ingressPolicies, dst, src, ingress)
			if !inOK {
				continue
			}
			outOK, outPorts := idx.allows(egressPolicies, src, dst, egress)
			if !outOK {
				continue
			}
			ports := intersectPorts(inPorts, outPorts)
			if inPorts != nil && outPorts != nil && len(ports) == 0 {
				continue
			}
			routes = append(routes, models.AllowedRoute{
				SourcePod: podRef(src),
				TargetPod: podRef(dst),
				Ports:     ports,
			})
		}
	}
	return routes
}

func hasType(p *netv1.NetworkPolicy, dir direction) bool {
	want := netv1.PolicyTypeIngress
	if dir == egress {
		want = netv1.PolicyTypeEgress
	}
	if len(p.Spec.PolicyTypes) == 0 {
		// Ingress is implied; egress only when egress rules exist.
		return dir == ingress || len(p.Spec.Egress) > 0
	}
	for _, t := range p.Spec.PolicyTypes {
		if t == want {
			return true
		}
	}
	return false
}

// selecting returns the policies isolating pod in one direction.
func (idx policyIndex) selecting(pod *v1.Pod, dir direction) []*netv1.NetworkPolicy {
	var out []*netv1.NetworkPolicy
	for _, p := range idx.policies {
		if p.Namespace != pod.Namespace || !hasType(p, dir) {
			continue
		}
		if matches(&p.Spec.PodSelector, pod.Labels) {
			out = append(out, p)
		}
	}
	return out
}

// allows reports whether any policy lets peer talk to subject, and on which
// ports. A nil port list means every port. No policies means not isolated.
func (idx policyIndex) allows(policies []*netv1.NetworkPolicy, subject, peer *v1.Pod, dir direction) (bool, []int32) {
	if len(policies) == 0 {
		return true, nil
	}
	allowed := false
	var ports []int32
	allPorts := false
	for _, p := range policies {
		for _, rule := range rules(p, dir) {
			if !idx.peerMatches(rule.peers, p.Namespace, peer) {
				continue
			}
			allowed = true
			if len(rule.ports) == 0 {
				allPorts = true
				continue
			}
			for _, port := range rule.ports {
				if port.Port != nil && port.Port.IntVal != 0 {
					ports = append(ports, port.Port.IntVal)
				} else {
					// named or unspecified port
					allPorts = true
				}
			}
		}
	}
	if !allowed {
		return false, nil
	}
	if allPorts {
		return true, nil
	}
	return true, dedupPorts(ports)
}

type rule struct {
	peers []netv1.NetworkPolicyPeer
	ports []netv1.NetworkPolicyPort
}

func rules(p *netv1.NetworkPolicy, dir direction) []rule {
	var out []rule
	if dir == ingress {
		for _, r := range p.Spec.Ingress {
			out = append(out, rule{peers: r.From, ports: r.Ports})
		}
		return out
	}
	for _, r := range p.Spec.Egress {
		out = append(out, rule{peers: r.To, ports: r.Ports})
	}
	return out
}

// peerMatches applies the peers of one rule. An empty peer list matches
// everything; ipBlock peers never match a pod.
func (idx policyIndex) peerMatches(peers []netv1.NetworkPolicyPeer, policyNamespace string, pod *v1.Pod) bool {
	if len(peers) == 0 {
		return true
	}
	for _, peer := range peers {
		switch {
		case peer.PodSelector == nil && peer.NamespaceSelector == nil:
			continue
		case peer.NamespaceSelector == nil:
			if pod.Namespace == policyNamespace && matches(peer.PodSelector, pod.Labels) {
				return true
			}
		case peer.PodSelector == nil:
			if matches(peer.NamespaceSelector, idx.nsLabels[pod.Namespace]) {
				return true
			}
		default:
			if matches(peer.NamespaceSelector, idx.nsLabels[pod.Namespace]) && matches(peer.PodSelector, pod.Labels) {
				return true
			}
		}
	}
	return false
}

func matches(sel *metav1.LabelSelector, set map[string]string) bool {
	s, err := metav1.LabelSelectorAsSelector(sel)
	if err != nil {
		return false
	}
	return s.Matches(labels.Set(set))
}

func dedupPorts(ports []int32) []int32 {
	seen := map[int32]bool{}
	var out []int32
	for _, p := range ports {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// intersectPorts combines ingress and egress port lists; nil means all.
func intersectPorts(a, b []int32) []int32 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	in := map[int32]bool{}
	for _, p := range b {
		in[p] = true
	}
	var out []int32
	for _, p := range a {
		if in[p] {
			out = append(out, p)
		}
	}
	return out
}
