package sd_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/doublemo/ranger/cores/sd"
	"github.com/doublemo/ranger/cores/sd/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const (
	testNamespace = "test"
	testService   = "svc"
	testPath      = "/test/svc"
)

type shardInfo struct {
	Environment string `json:"environment"`
}

func record(t *testing.T, host string, env string, status sd.HealthStatus) []byte {
	t.Helper()
	data, err := sd.NewNodeRecord(host, 8080, shardInfo{Environment: env}, status, time.Time{}).Marshal()
	require.NoError(t, err)
	return data
}

func newUpdater(t *testing.T, store sd.Store, options ...sd.UpdaterOption) (*sd.Registry[shardInfo], *sd.RegistryUpdater[shardInfo]) {
	t.Helper()
	service, err := sd.NewService(store, testNamespace, testService, nil)
	require.NoError(t, err)

	registry := sd.NewRegistry(service, sd.JSONDeserializer[shardInfo]())
	updater := sd.NewRegistryUpdater(registry, options...)
	t.Cleanup(updater.Stop)
	return registry, updater
}

func hosts(nodes []*sd.ServiceNode[shardInfo]) []string {
	out := make([]string, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node.Host())
	}
	sort.Strings(out)
	return out
}

func eventuallyHosts(t *testing.T, registry *sd.Registry[shardInfo], want ...string) {
	t.Helper()
	sort.Strings(want)
	if want == nil {
		want = []string{}
	}
	require.Eventually(t, func() bool {
		got := hosts(registry.Nodes())
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

// faultyStore lets tests inject failures and observe calls on top of the
// in-memory store.
type faultyStore struct {
	*memory.Store

	childrenErr   atomic.Error
	childrenCalls atomic.Int64
	watchErr      atomic.Error
	watchCalls    atomic.Int64
	watchDelay    atomic.Duration

	mu       sync.Mutex
	vanished map[string]bool
	gone     map[string]bool

	block   atomic.Bool
	entered chan struct{}
	gate    chan struct{}
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store:    memory.New(),
		vanished: make(map[string]bool),
		gone:     make(map[string]bool),
		entered:  make(chan struct{}),
		gate:     make(chan struct{}),
	}
}

func (s *faultyStore) WatchChildren(ctx context.Context, path string, fn func(sd.WatchEvent)) error {
	s.watchCalls.Inc()
	if err := s.watchErr.Load(); err != nil {
		return err
	}

	if d := s.watchDelay.Load(); d > 0 {
		time.Sleep(d)
	}
	return s.Store.WatchChildren(ctx, path, fn)
}

func (s *faultyStore) Children(ctx context.Context, path string) ([]string, error) {
	s.childrenCalls.Inc()
	if s.block.Load() {
		s.entered <- struct{}{}
		<-s.gate
	}

	if err := s.childrenErr.Load(); err != nil {
		return nil, err
	}
	return s.Store.Children(ctx, path)
}

// Exists reports false for paths marked vanished.
func (s *faultyStore) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	v := s.vanished[path]
	s.mu.Unlock()
	if v {
		return false, nil
	}
	return s.Store.Exists(ctx, path)
}

// Get reports sd.ErrNoNode for paths marked gone, as if the node was removed
// between Exists and Get.
func (s *faultyStore) Get(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	g := s.gone[path]
	s.mu.Unlock()
	if g {
		return nil, sd.ErrNoNode
	}
	return s.Store.Get(ctx, path)
}

func (s *faultyStore) markVanished(path string) {
	s.mu.Lock()
	s.vanished[path] = true
	s.mu.Unlock()
}

func (s *faultyStore) markGone(path string) {
	s.mu.Lock()
	s.gone[path] = true
	s.mu.Unlock()
}
