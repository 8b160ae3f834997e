package ranger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/doublemo/ranger/cores/sd"
	"github.com/doublemo/ranger/cores/sd/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

func testConfiguration() Configuration {
	c := NewConfiguration()
	c.Service.Namespace = "test"
	c.Service.Name = "svc"
	return c
}

func publish(t *testing.T, store *memory.Store, child, host string, info ShardInfo) {
	t.Helper()
	data, err := sd.NewNodeRecord(host, 7000, info, sd.Healthy, time.Time{}).Marshal()
	require.NoError(t, err)
	store.Set("/test/svc/"+child, data)
}

func TestConfigurationCheck(t *testing.T) {
	assert.NoError(t, testConfiguration().Check())

	c := NewConfiguration()
	err := c.Check()
	assert.ErrorIs(t, err, errEmpty)

	c = testConfiguration()
	c.Backend = "consul"
	c.Service.Selector = "first"
	c.Service.StaleAfterSec = -1
	err = c.Check()
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.ErrorIs(t, err, ErrUnknownSelector)
	assert.ErrorIs(t, err, ErrNegativeDuration)

	c = testConfiguration()
	c.Backend = BackendEtcd
	c.Etcd.Endpoints = nil
	assert.ErrorIs(t, c.Check(), ErrNoServers)
}

func TestConfigurationParse(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ranger.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
backend: etcd
etcd:
  endpoints: ["http://10.0.0.1:2379"]
service:
  namespace: prod
  name: billing
  environment: live
  selector: round_robin
  refresh_interval_sec: 30
log:
  level: debug
`), 0644))

	c := NewConfiguration()
	c.SourceFile = file
	require.NoError(t, c.Parse())
	require.NoError(t, c.Check())

	assert.Equal(t, file, c.SourceFile)
	assert.Equal(t, BackendEtcd, c.Backend)
	assert.Equal(t, []string{"http://10.0.0.1:2379"}, c.Etcd.Endpoints)
	assert.Equal(t, "billing", c.Service.Name)
	assert.Equal(t, 30*time.Second, c.Service.RefreshInterval())
	assert.Equal(t, "debug", c.Logger.Level)

	// defaults survive
	assert.Equal(t, 60, c.Metrics.ReportingFreqSec)
	assert.Equal(t, 3, c.Etcd.DialTimeout)
}

func TestConfigurationParseMissingFile(t *testing.T) {
	c := NewConfiguration()
	assert.NoError(t, c.Parse())

	c.SourceFile = filepath.Join(t.TempDir(), "missing.yml")
	assert.Error(t, c.Parse())
}

func TestShardSelector(t *testing.T) {
	nodes := []*sd.ServiceNode[ShardInfo]{
		sd.NewServiceNode("a", 1, ShardInfo{Environment: "live", Region: "eu"}, sd.Healthy, time.Time{}),
		sd.NewServiceNode("b", 1, ShardInfo{Environment: "live", Region: "us"}, sd.Healthy, time.Time{}),
		sd.NewServiceNode("c", 1, ShardInfo{Environment: "stage"}, sd.Healthy, time.Time{}),
	}

	sel := ShardSelector()
	assert.Len(t, sel.Nodes(ShardInfo{}, nodes), 3)
	assert.Len(t, sel.Nodes(ShardInfo{Environment: "live"}, nodes), 2)
	assert.Len(t, sel.Nodes(ShardInfo{Region: "us"}, nodes), 1)
	assert.Empty(t, sel.Nodes(ShardInfo{Environment: "stage", Region: "eu"}, nodes))
}

func TestDiff(t *testing.T) {
	added, removed := diff([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"c"}, added)
	assert.Equal(t, []string{"a"}, removed)

	added, removed = diff(nil, nil)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestDialUnknownBackend(t *testing.T) {
	c := testConfiguration()
	c.Backend = "consul"
	_, _, err := Dial(context.Background(), zap.NewNop(), c)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestServeSelectsByEnvironment(t *testing.T) {
	store := memory.New()
	publish(t, store, "n1", "h1", ShardInfo{Environment: "live"})
	publish(t, store, "n2", "h2", ShardInfo{Environment: "stage"})

	c := testConfiguration()
	c.Service.Environment = "live"
	s, err := New(zap.NewNop(), tally.NoopScope, store, c)
	require.NoError(t, err)
	defer s.Shutdown()

	require.NoError(t, s.Serve(context.Background()))
	node := s.Select()
	require.NotNil(t, node)
	assert.Equal(t, "h1", node.Host())
	assert.Len(t, s.Finder().Registry().Nodes(), 2)

	publish(t, store, "n3", "h3", ShardInfo{Environment: "live"})
	assert.Eventually(t, func() bool {
		return len(s.SelectAll()) == 2
	}, time.Second, 10*time.Millisecond)

	store.Delete("/test/svc/n1")
	store.Delete("/test/svc/n3")
	assert.Eventually(t, func() bool {
		return s.Select() == nil
	}, time.Second, 10*time.Millisecond)
}

func TestServeRetriesUntilPathExists(t *testing.T) {
	store := memory.New()
	s, err := New(zap.NewNop(), tally.NoopScope, store, testConfiguration())
	require.NoError(t, err)
	defer s.Shutdown()

	go func() {
		time.Sleep(100 * time.Millisecond)
		publish(t, store, "n1", "h1", ShardInfo{Environment: "live"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Serve(ctx))
	assert.Equal(t, "h1", s.Select().Host())
}

func TestServeGivesUp(t *testing.T) {
	store := memory.New()
	store.SetActive(false)

	s, err := New(zap.NewNop(), tally.NoopScope, store, testConfiguration())
	require.NoError(t, err)
	s.MaxStartElapsed = 200 * time.Millisecond
	defer s.Shutdown()

	err = s.Serve(context.Background())
	var startupErr *sd.StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.ErrorIs(t, err, sd.ErrStoreUnavailable)
}

func TestServeTwice(t *testing.T) {
	store := memory.New()
	publish(t, store, "n1", "h1", ShardInfo{})

	s, err := New(zap.NewNop(), tally.NoopScope, store, testConfiguration())
	require.NoError(t, err)
	defer s.Shutdown()

	require.NoError(t, s.Serve(context.Background()))
	assert.ErrorIs(t, s.Serve(context.Background()), sd.ErrUpdaterStarted)
}
