package sd_test

import (
	"context"
	"testing"

	"github.com/doublemo/ranger/cores/sd"
	"github.com/doublemo/ranger/cores/sd/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func shardedConfig(store sd.Store) sd.FinderConfig[shardInfo, shardInfo] {
	return sd.FinderConfig[shardInfo, shardInfo]{
		Store:         store,
		Namespace:     testNamespace,
		ServiceName:   testService,
		Deserializer:  sd.JSONDeserializer[shardInfo](),
		ShardSelector: byEnvironment,
	}
}

func TestFinderConfigCheck(t *testing.T) {
	store := memory.New()
	tests := []struct {
		name   string
		mutate func(*sd.FinderConfig[shardInfo, shardInfo])
		err    error
	}{
		{"valid", func(*sd.FinderConfig[shardInfo, shardInfo]) {}, nil},
		{"no store", func(c *sd.FinderConfig[shardInfo, shardInfo]) { c.Store = nil }, sd.ErrNilStore},
		{"no namespace", func(c *sd.FinderConfig[shardInfo, shardInfo]) { c.Namespace = "" }, sd.ErrEmptyNamespace},
		{"no service", func(c *sd.FinderConfig[shardInfo, shardInfo]) { c.ServiceName = "" }, sd.ErrEmptyServiceName},
		{"no deserializer", func(c *sd.FinderConfig[shardInfo, shardInfo]) { c.Deserializer = nil }, sd.ErrNilDeserializer},
		{"no shard selector", func(c *sd.FinderConfig[shardInfo, shardInfo]) { c.ShardSelector = nil }, sd.ErrNilShardSelector},
		{"negative interval", func(c *sd.FinderConfig[shardInfo, shardInfo]) { c.RefreshInterval = -1 }, sd.ErrNegativeInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := shardedConfig(store)
			tt.mutate(&c)

			f, err := sd.NewFinder(c)
			if tt.err == nil {
				require.NoError(t, err)
				assert.NotEmpty(t, f.ID())
				return
			}
			assert.ErrorIs(t, err, tt.err)
			assert.Nil(t, f)
		})
	}
}

func TestShardedFinder(t *testing.T) {
	store := memory.New()
	store.Set(testPath+"/p1", record(t, "p1", "prod", sd.Healthy))
	store.Set(testPath+"/p2", record(t, "p2", "prod", sd.Healthy))
	store.Set(testPath+"/s1", record(t, "s1", "stage", sd.Healthy))

	c := shardedConfig(store)
	c.Logger = zaptest.NewLogger(t)
	finder, err := sd.NewShardedFinder(c)
	require.NoError(t, err)
	require.NoError(t, finder.Start(context.Background()))
	defer finder.Stop()

	assert.Equal(t, []string{"p1", "p2"}, hosts(finder.GetAll(shardInfo{Environment: "prod"})))
	assert.Equal(t, "s1", finder.Get(shardInfo{Environment: "stage"}).Host())
	assert.Nil(t, finder.Get(shardInfo{Environment: "dev"}))

	store.Set(testPath+"/d1", record(t, "d1", "dev", sd.Healthy))
	eventuallyHosts(t, finder.Registry(), "p1", "p2", "s1", "d1")
	assert.Equal(t, "d1", finder.Get(shardInfo{Environment: "dev"}).Host())
}

func TestUnshardedFinder(t *testing.T) {
	store := memory.New()
	store.Set(testPath+"/a", record(t, "a", "", sd.Healthy))

	finder, err := sd.NewUnshardedFinder(sd.FinderConfig[shardInfo, sd.Unsharded]{
		Store:        store,
		Namespace:    testNamespace,
		ServiceName:  testService,
		Deserializer: sd.JSONDeserializer[shardInfo](),
		NodeSelector: &sd.RoundRobinNodeSelector[shardInfo]{},
	})
	require.NoError(t, err)
	require.NoError(t, finder.Start(context.Background()))
	defer finder.Stop()

	assert.Equal(t, "a", finder.Get(sd.Unsharded{}).Host())

	store.Delete(testPath + "/a")
	eventuallyHosts(t, finder.Registry())
	assert.Nil(t, finder.Get(sd.Unsharded{}))
}

func TestFinderCustomPath(t *testing.T) {
	store := memory.New()
	store.Set("/discovery/svc.test/a", record(t, "a", "", sd.Healthy))

	c := shardedConfig(store)
	c.Path = func(namespace, name string) string {
		return "/discovery/" + name + "." + namespace
	}
	c.ShardSelector = sd.AllNodesShardSelector[shardInfo, shardInfo]{}

	finder, err := sd.NewFinder(c)
	require.NoError(t, err)
	require.NoError(t, finder.Start(context.Background()))
	defer finder.Stop()

	assert.Equal(t, "/discovery/svc.test", finder.Registry().Service().Path())
	assert.Equal(t, "a", finder.Get(shardInfo{}).Host())
}

func TestFinderForcedUpdate(t *testing.T) {
	store := newFaultyStore()
	store.watchErr.Store(assert.AnError)
	store.Set(testPath+"/a", record(t, "a", "", sd.Healthy))

	c := shardedConfig(store)
	c.ShardSelector = sd.AllNodesShardSelector[shardInfo, shardInfo]{}
	finder, err := sd.NewFinder(c)
	require.NoError(t, err)
	require.NoError(t, finder.Start(context.Background()))
	defer finder.Stop()

	// no watch is armed, only the explicit check picks this up
	store.Set(testPath+"/b", record(t, "b", "", sd.Healthy))
	finder.CheckForUpdate()
	eventuallyHosts(t, finder.Registry(), "a", "b")
}
