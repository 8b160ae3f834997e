// Copyright (c) 2022 The Linna Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author: Randyma
// Date: 2022-05-29 23:47:50
// LastEditors: Randyma
// LastEditTime: 2022-06-10 22:31:17
// Description: 服务节点刷新

package sd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tilinna/clock"
	"github.com/uber-go/tally/v4"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrUpdaterStarted = errors.New("sd: updater already started")
	ErrUpdaterStopped = errors.New("sd: updater stopped")

	// ErrSessionInactive is returned by a reconcile pass when the store
	// reports no active session.
	ErrSessionInactive = fmt.Errorf("%w: session not active", ErrStoreUnavailable)
)

const (
	skipVanished  = "vanished"
	skipEmpty     = "empty"
	skipMalformed = "malformed"
	skipUnhealthy = "unhealthy"
	skipStale     = "stale"
)

type UpdaterOption func(*updaterOptions)

type updaterOptions struct {
	logger          *zap.Logger
	scope           tally.Scope
	refreshInterval time.Duration
	staleAfter      time.Duration
}

// WithLogger sets the updater's logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) UpdaterOption {
	return func(o *updaterOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithScope sets the tally scope reconcile metrics are reported to.
func WithScope(scope tally.Scope) UpdaterOption {
	return func(o *updaterOptions) {
		if scope != nil {
			o.scope = scope
		}
	}
}

// WithRefreshInterval makes the worker reconcile at least once per interval
// even when no watch fires. A pass triggered this way also re-arms a watch
// that was lost. Zero disables periodic refresh.
func WithRefreshInterval(d time.Duration) UpdaterOption {
	return func(o *updaterOptions) {
		o.refreshInterval = d
	}
}

// WithStaleAfter drops members whose record was last refreshed more than d
// ago. Records without a timestamp are never considered stale. Zero disables
// the check.
func WithStaleAfter(d time.Duration) UpdaterOption {
	return func(o *updaterOptions) {
		o.staleAfter = d
	}
}

// RegistryUpdater keeps a Registry in step with the coordination store. A
// children watch on the service path and explicit CheckForUpdate calls both
// raise a level-triggered signal; a single worker goroutine drains it and
// runs one reconcile pass per wakeup.
type RegistryUpdater[T any] struct {
	registry *Registry[T]
	options  updaterOptions
	logger   *zap.Logger
	signal   *updateSignal
	stopped  atomic.Bool

	// watchSeq numbers every registration; armed holds the number of the
	// watch still pending, zero when none is.
	watchSeq atomic.Uint64
	armed    atomic.Uint64

	mutx    sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRegistryUpdater creates an updater for registry. Nothing happens until
// Start is called.
func NewRegistryUpdater[T any](registry *Registry[T], options ...UpdaterOption) *RegistryUpdater[T] {
	opts := updaterOptions{
		logger: zap.NewNop(),
		scope:  tally.NoopScope,
	}

	for _, opt := range options {
		opt(&opts)
	}

	service := registry.Service()
	return &RegistryUpdater[T]{
		registry: registry,
		options:  opts,
		logger: opts.logger.With(
			zap.String("namespace", service.Namespace()),
			zap.String("service", service.Name()),
			zap.String("path", service.Path()),
		),
		signal: newUpdateSignal(),
	}
}

// Start arms the children watch, performs one synchronous reconcile to fill
// the registry and launches the worker. It fails with a *StartupError only
// when that first reconcile gets no data from the store; an empty member
// list is a valid start.
func (u *RegistryUpdater[T]) Start(ctx context.Context) error {
	u.mutx.Lock()
	defer u.mutx.Unlock()

	if u.stopped.Load() {
		return ErrUpdaterStopped
	}

	if u.started {
		return ErrUpdaterStarted
	}

	wctx, cancel := context.WithCancel(ctx)
	u.cancel = cancel

	if err := u.arm(wctx); err != nil {
		u.logger.Warn("Could not watch service path, will retry on next refresh", zap.Error(err))
	}

	nodes, skipped, err := u.reconcile(wctx)
	if err != nil {
		cancel()
		u.options.scope.Counter("reconcile.failures").Inc(1)
		service := u.registry.Service()
		return &StartupError{Service: service.Name(), Path: service.Path(), Err: err}
	}

	u.publish(wctx, nodes, skipped)
	u.done = make(chan struct{})
	u.started = true
	go u.loop(wctx)

	u.logger.Info("Started watching coordination store for changes", zap.Int("nodes", len(nodes)))
	return nil
}

// CheckForUpdate asks the worker for a reconcile pass. It never blocks;
// calls made while a request is already pending are merged into it.
func (u *RegistryUpdater[T]) CheckForUpdate() {
	u.signal.raise()
}

// Stop ends the worker after its current pass and releases the watch. Safe to
// call more than once and before Start.
func (u *RegistryUpdater[T]) Stop() {
	u.mutx.Lock()
	defer u.mutx.Unlock()

	if !u.stopped.CompareAndSwap(false, true) {
		return
	}

	if !u.started {
		return
	}

	u.cancel()
	<-u.done
	u.logger.Debug("Stopped updater")
}

func (u *RegistryUpdater[T]) loop(ctx context.Context) {
	defer close(u.done)

	var tick <-chan time.Time
	if u.options.refreshInterval > 0 {
		ticker := clock.NewTicker(ctx, u.options.refreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-u.signal.wait():
		case <-tick:
		}

		if ctx.Err() != nil {
			return
		}

		u.refresh(ctx)
	}
}

// refresh runs one pass on the worker and publishes its result. A failed pass
// keeps the previous snapshot. Once started, only the worker arms watches.
func (u *RegistryUpdater[T]) refresh(ctx context.Context) {
	if u.armed.Load() == 0 {
		if err := u.arm(ctx); err != nil {
			u.logger.Debug("Watch still not armed", zap.Error(err))
		}
	}

	nodes, skipped, err := u.reconcile(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		u.options.scope.Counter("reconcile.failures").Inc(1)
		u.registry.fail(err)
		u.logger.Warn("No service nodes found, disconnected from coordination store. Keeping old list.", zap.Error(err))
		return
	}

	u.logger.Debug("Setting node list", zap.Int("size", len(nodes)), zap.Int("skipped", skipped))
	u.publish(ctx, nodes, skipped)
}

func (u *RegistryUpdater[T]) publish(ctx context.Context, nodes []*ServiceNode[T], skipped int) {
	u.registry.update(nodes, skipped, clock.Now(ctx))
	u.options.scope.Counter("reconcile.passes").Inc(1)
	u.options.scope.Gauge("registry.nodes").Update(float64(len(nodes)))
}

// arm registers a one-shot children watch on the service path.
func (u *RegistryUpdater[T]) arm(ctx context.Context) error {
	id := u.watchSeq.Inc()
	u.armed.Store(id)

	service := u.registry.Service()
	err := service.Store().WatchChildren(ctx, service.Path(), func(evt WatchEvent) {
		u.onWatchEvent(ctx, id, evt)
	})
	if err != nil {
		u.armed.CompareAndSwap(id, 0)
	}
	return err
}

// onWatchEvent runs on the store's goroutine. The watch that delivered the
// event is spent; the worker re-arms it at the start of the pass woken here.
func (u *RegistryUpdater[T]) onWatchEvent(ctx context.Context, id uint64, evt WatchEvent) {
	if u.stopped.Load() || ctx.Err() != nil {
		return
	}

	u.armed.CompareAndSwap(id, 0)
	u.logger.Debug("Watch fired", zap.Stringer("event", evt.Type), zap.Error(evt.Err))
	u.CheckForUpdate()
}

// reconcile lists the service's children and returns the healthy members.
// An error means the store could not be asked; a nil error with an empty
// slice means the service genuinely has no healthy members.
func (u *RegistryUpdater[T]) reconcile(ctx context.Context) (nodes []*ServiceNode[T], skipped int, err error) {
	sw := u.options.scope.Timer("reconcile.latency").Start()
	defer sw.Stop()

	service := u.registry.Service()
	store := service.Store()
	if !store.Active() {
		return nil, 0, ErrSessionInactive
	}

	children, err := store.Children(ctx, service.Path())
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", service.Path(), err)
	}

	var (
		now       = clock.Now(ctx)
		malformed error
	)

	nodes = make([]*ServiceNode[T], 0, len(children))
	for _, child := range children {
		path := service.childPath(child)
		ok, err := store.Exists(ctx, path)
		if err != nil {
			return nil, 0, fmt.Errorf("check %s: %w", path, err)
		}

		if !ok {
			u.skip(skipVanished)
			skipped++
			continue
		}

		data, err := store.Get(ctx, path)
		if errors.Is(err, ErrNoNode) {
			u.skip(skipVanished)
			skipped++
			continue
		}

		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", path, err)
		}

		if len(data) < 1 {
			u.skip(skipEmpty)
			skipped++
			continue
		}

		node, err := u.registry.Deserializer().Deserialize(data)
		if err != nil || node == nil {
			if err == nil {
				err = ErrMalformedPayload
			}
			malformed = multierr.Append(malformed, fmt.Errorf("%s: %w", path, err))
			u.skip(skipMalformed)
			skipped++
			continue
		}

		if !node.Healthy() {
			u.skip(skipUnhealthy)
			skipped++
			continue
		}

		if u.options.staleAfter > 0 && !node.LastUpdated().IsZero() && now.Sub(node.LastUpdated()) > u.options.staleAfter {
			u.skip(skipStale)
			skipped++
			continue
		}

		nodes = append(nodes, node)
	}

	if malformed != nil {
		u.logger.Warn("Skipping service nodes with malformed data", zap.Error(malformed))
	}

	return nodes, skipped, nil
}

func (u *RegistryUpdater[T]) skip(reason string) {
	u.options.scope.Tagged(map[string]string{"reason": reason}).Counter("reconcile.skipped").Inc(1)
}
