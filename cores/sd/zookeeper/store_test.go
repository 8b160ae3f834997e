package zookeeper

import (
	"context"
	"testing"
	"time"

	"github.com/doublemo/ranger/cores/sd"
	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	state    zk.State
	children map[string][]string
	data     map[string][]byte
	err      error
	watch    chan zk.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		state:    zk.StateHasSession,
		children: make(map[string][]string),
		data:     make(map[string][]byte),
		watch:    make(chan zk.Event, 1),
	}
}

func (c *fakeConn) ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error) {
	children, _, err := c.Children(path)
	if err != nil {
		return nil, nil, nil, err
	}
	return children, &zk.Stat{}, c.watch, nil
}

func (c *fakeConn) Children(path string) ([]string, *zk.Stat, error) {
	if c.err != nil {
		return nil, nil, c.err
	}

	children, ok := c.children[path]
	if !ok {
		return nil, nil, zk.ErrNoNode
	}
	return children, &zk.Stat{}, nil
}

func (c *fakeConn) Exists(path string) (bool, *zk.Stat, error) {
	if c.err != nil {
		return false, nil, c.err
	}
	_, ok := c.data[path]
	return ok, &zk.Stat{}, nil
}

func (c *fakeConn) Get(path string) ([]byte, *zk.Stat, error) {
	if c.err != nil {
		return nil, nil, c.err
	}

	data, ok := c.data[path]
	if !ok {
		return nil, nil, zk.ErrNoNode
	}
	return data, &zk.Stat{}, nil
}

func (c *fakeConn) State() zk.State {
	return c.state
}

func TestStoreReads(t *testing.T) {
	conn := newFakeConn()
	conn.children["/ns/svc"] = []string{"a", "b"}
	conn.data["/ns/svc/a"] = []byte("payload")
	conn.data["/ns/svc/b"] = []byte{}

	s := NewStore(conn)
	ctx := context.Background()
	assert.True(t, s.Active())

	children, err := s.Children(ctx, "/ns/svc")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, children)

	ok, err := s.Exists(ctx, "/ns/svc/a")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.Get(ctx, "/ns/svc/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	data, err = s.Get(ctx, "/ns/svc/b")
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = s.Get(ctx, "/ns/svc/c")
	assert.ErrorIs(t, err, sd.ErrNoNode)

	_, err = s.Children(ctx, "/missing")
	assert.ErrorIs(t, err, sd.ErrNoNode)
}

func TestStoreErrors(t *testing.T) {
	conn := newFakeConn()
	s := NewStore(conn)

	for _, zkErr := range []error{zk.ErrConnectionClosed, zk.ErrNoServer, zk.ErrSessionExpired, zk.ErrClosing} {
		conn.err = zkErr
		_, err := s.Children(context.Background(), "/ns/svc")
		assert.ErrorIs(t, err, sd.ErrStoreUnavailable, zkErr.Error())
	}

	conn.err = zk.ErrNoAuth
	_, err := s.Children(context.Background(), "/ns/svc")
	assert.ErrorIs(t, err, zk.ErrNoAuth)
	assert.NotErrorIs(t, err, sd.ErrStoreUnavailable)

	conn.err = nil
	conn.state = zk.StateDisconnected
	assert.False(t, s.Active())
}

func TestStoreWatch(t *testing.T) {
	conn := newFakeConn()
	conn.children["/ns/svc"] = []string{}
	s := NewStore(conn)

	events := make(chan sd.WatchEvent, 1)
	require.NoError(t, s.WatchChildren(context.Background(), "/ns/svc", func(evt sd.WatchEvent) {
		events <- evt
	}))

	conn.watch <- zk.Event{Type: zk.EventNodeChildrenChanged, Path: "/ns/svc"}
	select {
	case evt := <-events:
		assert.Equal(t, sd.EventChildrenChanged, evt.Type)
		assert.Equal(t, "/ns/svc", evt.Path)
	case <-time.After(time.Second):
		t.Fatal("watch callback not invoked")
	}
}

func TestStoreWatchMissingPath(t *testing.T) {
	s := NewStore(newFakeConn())
	err := s.WatchChildren(context.Background(), "/missing", func(sd.WatchEvent) {})
	assert.ErrorIs(t, err, sd.ErrNoNode)
}

func TestEventMapping(t *testing.T) {
	assert.Equal(t, sd.EventChildrenChanged, event(zk.Event{Type: zk.EventNodeChildrenChanged}).Type)
	assert.Equal(t, sd.EventNodeDeleted, event(zk.Event{Type: zk.EventNodeDeleted}).Type)
	assert.Equal(t, sd.EventNotWatching, event(zk.Event{Type: zk.EventNotWatching, Err: zk.ErrSessionExpired}).Type)
}

func TestParseServers(t *testing.T) {
	assert.Equal(t, []string{"a:2181", "b:2181"}, ParseServers(" a:2181, ,b:2181"))
	assert.Empty(t, ParseServers(""))
}

func TestNewClientWithoutServers(t *testing.T) {
	_, err := NewClient(context.Background(), nil, Config{})
	assert.ErrorIs(t, err, ErrNoServers)
}
