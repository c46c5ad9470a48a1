package address

import (
	"fmt"
	"net"

	corev1 "k8s.io/api/core/v1"
)

// Resolver derives replica set member addresses for pods. When ServiceName
// is set, pods fronted by that headless service get a stable DNS name that
// survives IP changes; otherwise the raw pod IP is used.
type Resolver struct {
	ServiceName   string
	ClusterDomain string
	Port          int
}

// Canonical returns the preferred member address for a pod.
//
// With a service name configured the form is
// {host}.{service}.{namespace}.svc.{domain}:{port}, where host is the pod's
// spec hostname when its subdomain matches the service, and the pod name
// otherwise. Without a service name the pod IP form is used.
func (r Resolver) Canonical(pod corev1.Pod) string {
	if r.ServiceName == "" {
		return r.PodIP(pod)
	}

	host := pod.Name
	if pod.Spec.Hostname != "" && pod.Spec.Subdomain == r.ServiceName {
		host = pod.Spec.Hostname
	}

	return fmt.Sprintf("%s.%s.%s.svc.%s:%d", host, r.ServiceName, pod.Namespace, r.ClusterDomain, r.Port)
}

// PodIP returns the {podIP}:{port} form, or "" when the pod has no IP yet.
func (r Resolver) PodIP(pod corev1.Pod) string {
	if pod.Status.PodIP == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", pod.Status.PodIP, r.Port)
}

// Matches reports whether a replica set member already represents the pod.
// Either canonical form counts, and so does an IP match: the member host
// being an IP literal equal to the pod IP, or an explicitly reported member
// IP. The IP match keeps a pod that inherited the address of a stale member
// from being added a second time.
func (r Resolver) Matches(memberHost, memberIP string, pod corev1.Pod) bool {
	if memberHost != "" && memberHost == r.Canonical(pod) {
		return true
	}
	if ip := r.PodIP(pod); ip != "" && memberHost == ip {
		return true
	}
	if host, _, err := net.SplitHostPort(memberHost); err == nil {
		if net.ParseIP(host) != nil && host == pod.Status.PodIP {
			return true
		}
	}
	return memberIP != "" && memberIP == pod.Status.PodIP
}
