package k8s

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

// PodSource lists the pods of the MongoDB workload. Pods are re-listed on
// every reconcile tick; there is no cache.
type PodSource struct {
	client        kubernetes.Interface
	namespace     string
	labelSelector string
}

// NewPodSource creates a pod source for the given namespace and selector.
func NewPodSource(client kubernetes.Interface, namespace, labelSelector string) *PodSource {
	return &PodSource{
		client:        client,
		namespace:     namespace,
		labelSelector: labelSelector,
	}
}

// ListMongoPods returns all pods matching the configured label selector.
func (s *PodSource) ListMongoPods(ctx context.Context) ([]corev1.Pod, error) {
	pods, err := s.client.CoreV1().Pods(s.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: s.labelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	klog.V(2).InfoS("Listed pods", "namespace", s.namespace, "selector", s.labelSelector, "count", len(pods.Items))

	return pods.Items, nil
}

// Running filters to pods that can hold a replica set member: phase Running
// with an assigned pod IP.
func Running(pods []corev1.Pod) []corev1.Pod {
	out := make([]corev1.Pod, 0, len(pods))
	for _, pod := range pods {
		if pod.Status.Phase == corev1.PodRunning && pod.Status.PodIP != "" {
			out = append(out, pod)
		}
	}
	return out
}
