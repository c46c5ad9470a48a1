package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/vonerrol/k8s-mongo-sidecar/pkg/config"
	"github.com/vonerrol/k8s-mongo-sidecar/pkg/k8s"
	"github.com/vonerrol/k8s-mongo-sidecar/pkg/sidecar"
)

var (
	version = "dev"
)

func main() {
	cfg := &config.Config{}
	var loopSleepSeconds, unhealthySeconds int

	// Loop flags
	flag.IntVar(&loopSleepSeconds, "loop-sleep-seconds", config.EnvInt("MONGO_SIDECAR_SLEEP_SECONDS", 5), "Seconds to sleep between reconcile ticks")
	flag.IntVar(&unhealthySeconds, "unhealthy-seconds", config.EnvInt("MONGO_SIDECAR_UNHEALTHY_SECONDS", 15), "Seconds past the last heartbeat before an unhealthy member is removed")

	// MongoDB flags
	flag.IntVar(&cfg.MongoPort, "mongo-port", config.EnvInt("MONGO_PORT", 27017), "MongoDB port")
	flag.StringVar(&cfg.MongoDatabase, "mongo-database", config.EnvString("MONGODB_DATABASE", "admin"), "Admin database name used for replica set commands")

	// Kubernetes flags
	flag.StringVar(&cfg.ServiceName, "service-name", os.Getenv("KUBERNETES_MONGO_SERVICE_NAME"), "Headless service fronting the MongoDB pods; enables stable DNS member addresses")
	flag.StringVar(&cfg.ClusterDomain, "cluster-domain", config.EnvString("KUBERNETES_CLUSTER_DOMAIN", "cluster.local"), "Cluster DNS domain")
	flag.StringVar(&cfg.Namespace, "namespace", config.EnvString("KUBERNETES_NAMESPACE", config.DefaultNamespace()), "Namespace to list pods in")
	flag.StringVar(&cfg.PodLabelSelector, "pod-label-selector", os.Getenv("MONGO_SIDECAR_POD_LABELS"), "Label selector identifying the MongoDB pods")
	flag.StringVar(&cfg.Kubeconfig, "kubeconfig", os.Getenv("KUBECONFIG"), "Path to a kubeconfig; empty means in-cluster credentials")
	flag.Parse()

	cfg.LoopSleep = time.Duration(loopSleepSeconds) * time.Second
	cfg.Unhealthy = time.Duration(unhealthySeconds) * time.Second

	if cfg.PodLabelSelector == "" {
		klog.Fatal("A pod label selector is required (MONGO_SIDECAR_POD_LABELS)")
	}

	identity, err := resolveIdentity(cfg.MongoPort)
	if err != nil {
		klog.Fatalf("Failed to resolve own address: %v", err)
	}

	kubeClient, err := newKubeClient(cfg.Kubeconfig)
	if err != nil {
		klog.Fatalf("Failed to create Kubernetes client: %v", err)
	}

	klog.InfoS("Starting mongo sidecar",
		"version", version,
		"ip", identity.IP,
		"namespace", cfg.Namespace,
		"selector", cfg.PodLabelSelector,
		"service", cfg.ServiceName,
		"interval", cfg.LoopSleep)

	pods := k8s.NewPodSource(kubeClient, cfg.Namespace, cfg.PodLabelSelector)

	sc, err := sidecar.New(cfg, pods, identity)
	if err != nil {
		klog.Fatalf("Failed to create sidecar: %v", err)
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		klog.InfoS("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := sc.Run(ctx); err != nil {
		klog.Fatalf("Sidecar error: %v", err)
	}

	klog.Info("Shutdown complete")
}

// resolveIdentity derives the pod's own IP from the local hostname. The
// result is fixed for the process lifetime.
func resolveIdentity(port int) (sidecar.HostIdentity, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return sidecar.HostIdentity{}, fmt.Errorf("failed to read hostname: %w", err)
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return sidecar.HostIdentity{}, fmt.Errorf("failed to resolve %s: %w", hostname, err)
	}

	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return sidecar.HostIdentity{
				IP:   v4.String(),
				Addr: fmt.Sprintf("%s:%d", v4, port),
			}, nil
		}
	}

	return sidecar.HostIdentity{}, fmt.Errorf("no IPv4 address for %s", hostname)
}

func newKubeClient(kubeconfig string) (kubernetes.Interface, error) {
	var restCfg *rest.Config
	var err error
	if kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}
