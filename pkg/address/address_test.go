package address

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func testPod(name, hostname, subdomain, ip string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "db"},
		Spec:       corev1.PodSpec{Hostname: hostname, Subdomain: subdomain},
		Status:     corev1.PodStatus{PodIP: ip},
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name     string
		resolver Resolver
		pod      corev1.Pod
		expected string
	}{
		{
			name:     "stable name from pod hostname",
			resolver: Resolver{ServiceName: "mongo", ClusterDomain: "cluster.local", Port: 27017},
			pod:      testPod("mongo-0", "mongo-0", "mongo", "10.0.0.2"),
			expected: "mongo-0.mongo.db.svc.cluster.local:27017",
		},
		{
			name:     "falls back to pod name when hostname unset",
			resolver: Resolver{ServiceName: "mongo", ClusterDomain: "cluster.local", Port: 27017},
			pod:      testPod("mongo-1", "", "", "10.0.0.3"),
			expected: "mongo-1.mongo.db.svc.cluster.local:27017",
		},
		{
			name:     "falls back to pod name when subdomain differs",
			resolver: Resolver{ServiceName: "mongo", ClusterDomain: "cluster.local", Port: 27017},
			pod:      testPod("mongo-2", "member-2", "other-svc", "10.0.0.4"),
			expected: "mongo-2.mongo.db.svc.cluster.local:27017",
		},
		{
			name:     "ip form without a service name",
			resolver: Resolver{ClusterDomain: "cluster.local", Port: 27017},
			pod:      testPod("mongo-0", "mongo-0", "mongo", "10.0.0.2"),
			expected: "10.0.0.2:27017",
		},
		{
			name:     "custom cluster domain",
			resolver: Resolver{ServiceName: "mongo", ClusterDomain: "example.org", Port: 27018},
			pod:      testPod("mongo-0", "mongo-0", "mongo", "10.0.0.2"),
			expected: "mongo-0.mongo.db.svc.example.org:27018",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.resolver.Canonical(tt.pod)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCanonicalNeverIPFormWithService(t *testing.T) {
	r := Resolver{ServiceName: "mongo", ClusterDomain: "cluster.local", Port: 27017}
	pod := testPod("mongo-0", "mongo-0", "mongo", "10.0.0.2")

	if got := r.Canonical(pod); got == r.PodIP(pod) {
		t.Errorf("Canonical returned the ip:port form %q despite a configured service", got)
	}
}

func TestPodIP(t *testing.T) {
	r := Resolver{Port: 27017}

	if got := r.PodIP(testPod("mongo-0", "", "", "10.0.0.2")); got != "10.0.0.2:27017" {
		t.Errorf("Expected 10.0.0.2:27017, got %q", got)
	}
	if got := r.PodIP(testPod("mongo-0", "", "", "")); got != "" {
		t.Errorf("Expected empty address for pod without IP, got %q", got)
	}
}

func TestMatches(t *testing.T) {
	r := Resolver{ServiceName: "mongo", ClusterDomain: "cluster.local", Port: 27017}

	tests := []struct {
		name       string
		memberHost string
		memberIP   string
		pod        corev1.Pod
		expected   bool
	}{
		{
			name:       "canonical name",
			memberHost: "mongo-0.mongo.db.svc.cluster.local:27017",
			pod:        testPod("mongo-0", "mongo-0", "mongo", "10.0.0.2"),
			expected:   true,
		},
		{
			name:       "ip and port form",
			memberHost: "10.0.0.2:27017",
			pod:        testPod("mongo-0", "mongo-0", "mongo", "10.0.0.2"),
			expected:   true,
		},
		{
			name:       "ip literal with different port",
			memberHost: "10.0.0.2:27018",
			pod:        testPod("mongo-0", "mongo-0", "mongo", "10.0.0.2"),
			expected:   true,
		},
		{
			name:       "reported member ip",
			memberHost: "mongo-1.mongo.db.svc.cluster.local:27017",
			memberIP:   "10.0.0.5",
			pod:        testPod("mongo-3", "mongo-3", "mongo", "10.0.0.5"),
			expected:   true,
		},
		{
			name:       "unrelated member",
			memberHost: "mongo-1.mongo.db.svc.cluster.local:27017",
			memberIP:   "10.0.0.3",
			pod:        testPod("mongo-0", "mongo-0", "mongo", "10.0.0.2"),
			expected:   false,
		},
		{
			name:       "different ip literal",
			memberHost: "10.0.0.9:27017",
			pod:        testPod("mongo-0", "mongo-0", "mongo", "10.0.0.2"),
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Matches(tt.memberHost, tt.memberIP, tt.pod)
			if got != tt.expected {
				t.Errorf("Matches(%q, %q) = %v, expected %v", tt.memberHost, tt.memberIP, got, tt.expected)
			}
		})
	}
}
