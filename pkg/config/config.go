package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const namespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// Config holds the resolved configuration for the sidecar
type Config struct {
	// Reconcile loop settings
	LoopSleep time.Duration
	Unhealthy time.Duration

	// MongoDB connection settings
	MongoPort     int
	MongoDatabase string

	// Stable DNS addressing; empty ServiceName disables it
	ServiceName   string
	ClusterDomain string

	// Kubernetes settings
	Namespace        string
	PodLabelSelector string
	Kubeconfig       string
}

// EnvString returns the value of the environment variable, or def when unset.
func EnvString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// EnvInt returns the integer value of the environment variable, or def when
// unset or not a number.
func EnvInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DefaultNamespace returns the namespace the sidecar pod runs in, read from
// the service account mount, falling back to "default".
func DefaultNamespace() string {
	if data, err := os.ReadFile(namespaceFile); err == nil {
		if ns := strings.TrimSpace(string(data)); ns != "" {
			return ns
		}
	}
	return "default"
}
