package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/routesync/events"
	"github.com/ceyewan/routesync/routing"
)

type nopListener struct{ name string }

func (*nopListener) OnEvent(context.Context, events.InstanceChangeEvent) {}

type recordingSubscriber struct {
	mu           sync.Mutex
	unsubscribed []events.Listener
	err          error
}

func (r *recordingSubscriber) Subscribe(context.Context, string, string, events.Listener) error {
	return nil
}

func (r *recordingSubscriber) Unsubscribe(_ context.Context, _, _ string, l events.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribed = append(r.unsubscribed, l)
	return r.err
}

func defs(key routing.ServiceKey, dest int) (routing.RouteDefinition, routing.ClusterDefinition) {
	cluster := routing.ClusterDefinition{ClusterID: key.ClusterID()}
	for i := 0; i < dest; i++ {
		cluster.Destinations = append(cluster.Destinations, routing.Destination{ID: fmt.Sprint(i)})
	}
	return routing.RouteDefinition{RouteID: key.RouteID(), ClusterID: key.ClusterID()}, cluster
}

func TestUpsert(t *testing.T) {
	s := New()
	key := routing.NewServiceKey("svc_orders", "")
	first, second := &nopListener{"first"}, &nopListener{"second"}

	route, cluster := defs(key, 1)
	assert.True(t, s.Upsert(key, route, cluster, first), "首次写入安装监听者")

	route, cluster = defs(key, 3)
	assert.False(t, s.Upsert(key, route, cluster, second), "已有监听者时不替换")

	entry, ok := s.Get(key)
	require.True(t, ok)
	assert.Same(t, first, entry.Listener)
	assert.Len(t, entry.Cluster.Destinations, 3, "路由和集群原地替换")
	assert.Equal(t, 1, s.Len())

	t.Run("没有监听者的条目接受后来的监听者", func(t *testing.T) {
		other := routing.NewServiceKey("svc_users", "")
		route, cluster := defs(other, 1)
		assert.False(t, s.Upsert(other, route, cluster, nil))
		assert.True(t, s.Upsert(other, route, cluster, second))
		entry, _ := s.Get(other)
		assert.Same(t, second, entry.Listener)
	})
}

func TestRemoveByKey(t *testing.T) {
	s := New()
	sub := &recordingSubscriber{}
	key := routing.NewServiceKey("svc_orders", "")
	l := &nopListener{}

	route, cluster := defs(key, 1)
	s.Upsert(key, route, cluster, l)

	entry, ok := s.RemoveByKey(key)
	require.True(t, ok)
	assert.Same(t, l, entry.Listener)
	require.NoError(t, sub.Unsubscribe(context.Background(), key.Service, key.Group, entry.Listener))

	_, ok = s.Get(key)
	assert.False(t, ok)
	assert.Equal(t, []events.Listener{l}, sub.unsubscribed, "恰好一次取消订阅")

	_, ok = s.RemoveByKey(key)
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	s := New()
	for _, name := range []string{"svc_c", "svc_a", "svc_b"} {
		key := routing.NewServiceKey(name, "")
		route, cluster := defs(key, 1)
		s.Upsert(key, route, cluster, nil)
	}

	snap := s.Snapshot()
	require.Len(t, snap.Routes, 3)
	require.Len(t, snap.Clusters, 3)
	assert.Equal(t, "svc_a-DEFAULT_GROUP", snap.Clusters[0].ClusterID)
	assert.Nil(t, snap.ChangeSignal())

	t.Run("快照不受后续修改影响", func(t *testing.T) {
		s.RemoveByKey(routing.NewServiceKey("svc_a", ""))
		assert.Len(t, snap.Routes, 3)
		assert.Len(t, s.Snapshot().Routes, 2)
	})
}

func TestClear(t *testing.T) {
	s := New()
	sub := &recordingSubscriber{}
	for i := 0; i < 3; i++ {
		key := routing.NewServiceKey(fmt.Sprintf("svc_%d", i), "")
		route, cluster := defs(key, 1)
		s.Upsert(key, route, cluster, &nopListener{})
	}
	key := routing.NewServiceKey("svc_nolistener", "")
	route, cluster := defs(key, 1)
	s.Upsert(key, route, cluster, nil)

	require.NoError(t, s.Clear(context.Background(), sub))
	assert.Equal(t, 0, s.Len())
	assert.Len(t, sub.unsubscribed, 3)

	t.Run("取消订阅失败仍然清空", func(t *testing.T) {
		key := routing.NewServiceKey("svc_x", "")
		route, cluster := defs(key, 1)
		s.Upsert(key, route, cluster, &nopListener{})

		err := s.Clear(context.Background(), &recordingSubscriber{err: errors.New("boom")})
		assert.Error(t, err)
		assert.Equal(t, 0, s.Len())
	})
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := routing.NewServiceKey(fmt.Sprintf("svc_%d", i%4), "")
			for j := 0; j < 100; j++ {
				route, cluster := defs(key, j%3)
				s.Upsert(key, route, cluster, &nopListener{})
				_ = s.Snapshot()
				if j%10 == 0 {
					s.RemoveByKey(key)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 4)
}
