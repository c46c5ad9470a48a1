package sidecar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/klog/v2"

	"github.com/vonerrol/k8s-mongo-sidecar/pkg/address"
	"github.com/vonerrol/k8s-mongo-sidecar/pkg/config"
	"github.com/vonerrol/k8s-mongo-sidecar/pkg/election"
	"github.com/vonerrol/k8s-mongo-sidecar/pkg/k8s"
	mongoclient "github.com/vonerrol/k8s-mongo-sidecar/pkg/mongo"
)

// HostIdentity is the sidecar's own network identity, resolved once at
// startup and immutable afterwards.
type HostIdentity struct {
	IP   string
	Addr string
}

// adminClient is the slice of the mongo admin surface the reconciler uses.
type adminClient interface {
	Status(ctx context.Context) (*mongoclient.Status, error)
	Initiate(ctx context.Context, primaryAddress string) error
	Reconfigure(ctx context.Context, additions, removals []string, force bool) error
	Close(ctx context.Context) error
}

type podLister interface {
	ListMongoPods(ctx context.Context) ([]corev1.Pod, error)
}

// Sidecar drives the reconcile loop for one MongoDB replica. Every replica
// of the workload runs an identical instance; agreement on who mutates the
// set comes from the deterministic election over pod IPs and from MongoDB's
// own config versioning, nothing else.
type Sidecar struct {
	cfg      *config.Config
	pods     podLister
	resolver address.Resolver
	identity HostIdentity

	dial  func(ctx context.Context) (adminClient, error)
	probe func(ctx context.Context, addr string) (bool, error)
	now   func() time.Time
}

// New creates a sidecar. The host identity must already be resolved.
func New(cfg *config.Config, pods podLister, identity HostIdentity) (*Sidecar, error) {
	if identity.IP == "" || identity.Addr == "" {
		return nil, fmt.Errorf("host identity is not resolved")
	}

	s := &Sidecar{
		cfg:  cfg,
		pods: pods,
		resolver: address.Resolver{
			ServiceName:   cfg.ServiceName,
			ClusterDomain: cfg.ClusterDomain,
			Port:          cfg.MongoPort,
		},
		identity: identity,
		now:      time.Now,
	}

	localAddr := fmt.Sprintf("127.0.0.1:%d", cfg.MongoPort)
	s.dial = func(ctx context.Context) (adminClient, error) {
		return mongoclient.Dial(ctx, localAddr, cfg.MongoDatabase)
	}
	s.probe = func(ctx context.Context, addr string) (bool, error) {
		return mongoclient.InReplSet(ctx, addr, cfg.MongoDatabase)
	}

	return s, nil
}

// Run executes reconcile ticks until the context ends. Tick errors are
// logged, never propagated: the loop itself is the retry. The next tick is
// armed only after the previous one finishes, so ticks never overlap.
func (s *Sidecar) Run(ctx context.Context) error {
	for {
		if err := s.reconcile(ctx); err != nil {
			klog.ErrorS(err, "Reconcile failed")
		}

		select {
		case <-ctx.Done():
			klog.Info("Context cancelled, stopping reconcile loop")
			return nil
		case <-time.After(s.cfg.LoopSleep):
		}
	}
}

// reconcile performs one observe-classify-act pass.
func (s *Sidecar) reconcile(ctx context.Context) error {
	if s.identity.IP == "" {
		panic("sidecar: reconcile before host identity was resolved")
	}

	pods, err := s.pods.ListMongoPods(ctx)
	if err != nil {
		return err
	}

	running := k8s.Running(pods)
	if len(running) == 0 {
		klog.InfoS("No running pods with an assigned IP, skipping tick")
		return nil
	}

	admin, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to local mongod: %w", err)
	}
	defer admin.Close(context.Background())

	status, err := admin.Status(ctx)
	switch {
	case err == nil:
		return s.inReplicaSet(ctx, admin, running, status)
	case mongoclient.IsNotYetInitialized(err):
		return s.initialize(ctx, admin, running)
	case mongoclient.IsInvalidConfig(err):
		return s.forceRecover(ctx, admin, running)
	default:
		return err
	}
}

// inReplicaSet handles the branches where the local instance holds a valid
// replica set configuration.
func (s *Sidecar) inReplicaSet(ctx context.Context, admin adminClient, pods []corev1.Pod, status *mongoclient.Status) error {
	primary, ok := status.Primary()
	switch {
	case ok && primary.Self:
		return s.primaryWork(ctx, admin, pods, status.Members, false)
	case ok:
		klog.V(2).InfoS("Another member is primary", "primary", primary.Name)
		return nil
	case election.IsWinner(pods, s.identity.IP):
		klog.InfoS("Replica set has no primary, elected to repair it")
		return s.primaryWork(ctx, admin, pods, status.Members, true)
	default:
		klog.V(2).Info("Replica set has no primary, another pod is elected to repair it")
		return nil
	}
}

// primaryWork converges replica set membership toward the pod set: missing
// pods are added under their canonical address, members whose heartbeat has
// been silent past the threshold are dropped. Both changes go out in a
// single reconfig. The force flag is owned by the caller: false from the
// self-primary branch, true only on the recovery paths.
func (s *Sidecar) primaryWork(ctx context.Context, admin adminClient, pods []corev1.Pod, members []mongoclient.StatusMember, force bool) error {
	additions := s.additions(pods, members)
	removals := s.removals(members)

	if len(additions) == 0 && len(removals) == 0 {
		klog.V(2).Info("Replica set membership matches the pod set")
		return nil
	}

	return admin.Reconfigure(ctx, additions, removals, force)
}

func (s *Sidecar) additions(pods []corev1.Pod, members []mongoclient.StatusMember) []string {
	var additions []string
	for _, pod := range pods {
		present := false
		for _, m := range members {
			if s.resolver.Matches(m.Name, m.IP, pod) {
				present = true
				break
			}
		}
		if !present {
			additions = append(additions, s.resolver.Canonical(pod))
		}
	}
	return additions
}

func (s *Sidecar) removals(members []mongoclient.StatusMember) []string {
	var removals []string
	for _, m := range members {
		if m.Health != 0 {
			continue
		}
		if stale := s.now().Sub(m.LastHeartbeatRecv); stale > s.cfg.Unhealthy {
			klog.InfoS("Member unhealthy past threshold", "member", m.Name, "stale", stale)
			removals = append(removals, m.Name)
		}
	}
	return removals
}

// initialize decides whether this pod should form the replica set. Every
// running pod is probed first: a peer that already reports membership means
// another sidecar is mid-reconcile, and its add path will absorb this
// instance. Any probe failure makes the answer unknown and aborts the tick.
func (s *Sidecar) initialize(ctx context.Context, admin adminClient, pods []corev1.Pod) error {
	inSet := make([]bool, len(pods))

	g, gctx := errgroup.WithContext(ctx)
	for i, pod := range pods {
		i, addr := i, s.resolver.PodIP(pod)
		g.Go(func() error {
			ok, err := s.probe(gctx, addr)
			if err != nil {
				return fmt.Errorf("failed to probe %s: %w", addr, err)
			}
			inSet[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, ok := range inSet {
		if ok {
			klog.InfoS("A peer already reports membership, skipping initiation", "peer", s.resolver.PodIP(pods[i]))
			return nil
		}
	}

	winner, ok := election.Winner(pods)
	if !ok || winner.Status.PodIP != s.identity.IP {
		klog.V(2).Info("Not elected to initiate the replica set")
		return nil
	}

	primary := s.resolver.Canonical(winner)
	if primary == "" {
		primary = s.identity.Addr
	}
	return admin.Initiate(ctx, primary)
}

// forceRecover rewrites the configuration of a set mongod considers
// unrecoverable. The forced reconfig can lose acknowledged writes;
// availability is deliberately preferred here, gated on the election so only
// one pod acts.
func (s *Sidecar) forceRecover(ctx context.Context, admin adminClient, pods []corev1.Pod) error {
	if !election.IsWinner(pods, s.identity.IP) {
		klog.V(2).Info("Replica set config invalid, another pod is elected to recover it")
		return nil
	}

	klog.InfoS("Replica set config invalid, forcing reconfiguration")
	return s.primaryWork(ctx, admin, pods, nil, true)
}
