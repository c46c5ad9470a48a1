package election

import (
	"encoding/binary"
	"net"
	"sort"

	corev1 "k8s.io/api/core/v1"
)

// Every sidecar replica observes the same pod set and sorts it identically,
// so at steady state exactly one replica considers itself the winner without
// any coordination.

// ipKey converts an IPv4 address to its 32-bit integer form. Textual
// ordering would be wrong here: "10.0.0.9" sorts after "10.0.0.10".
func ipKey(ip string) (uint32, bool) {
	v4 := net.ParseIP(ip).To4()
	if v4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(v4), true
}

// Sorted returns the pods ordered by numeric pod IP, lowest first. Pods
// without a usable IPv4 address sort last.
func Sorted(pods []corev1.Pod) []corev1.Pod {
	out := make([]corev1.Pod, len(pods))
	copy(out, pods)
	sort.SliceStable(out, func(i, j int) bool {
		ki, oki := ipKey(out[i].Status.PodIP)
		kj, okj := ipKey(out[j].Status.PodIP)
		if oki != okj {
			return oki
		}
		return ki < kj
	})
	return out
}

// Winner returns the pod every replica will independently elect, false when
// no pod has a usable address.
func Winner(pods []corev1.Pod) (corev1.Pod, bool) {
	sorted := Sorted(pods)
	if len(sorted) == 0 {
		return corev1.Pod{}, false
	}
	if _, ok := ipKey(sorted[0].Status.PodIP); !ok {
		return corev1.Pod{}, false
	}
	return sorted[0], true
}

// IsWinner reports whether the pod with the given IP wins the election.
func IsWinner(pods []corev1.Pod, selfIP string) bool {
	winner, ok := Winner(pods)
	return ok && winner.Status.PodIP == selfIP
}
