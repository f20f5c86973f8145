// Package store 按 ServiceKey 缓存每个服务的路由、集群和变更监听者。
//
// 一个 key 至多对应一个 Entry。Upsert 原地替换路由和集群，监听者只在首次写入时设置，
// 之后保留不变，因此每个服务在事件层只有一个订阅。
package store

import (
	"context"
	"sync"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/events"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/xerrors"
)

// Entry 一个服务的路由条目
type Entry struct {
	Key      routing.ServiceKey
	Route    routing.RouteDefinition
	Cluster  routing.ClusterDefinition
	Listener events.Listener
}

// Store 并发安全的路由条目表
type Store struct {
	logger  clog.Logger
	entries metrics.Gauge

	mu sync.RWMutex
	m  map[routing.ServiceKey]*Entry
}

// New 创建空表
func New(opts ...Option) *Store {
	o := applyOptions(opts)
	gauge, _ := o.meter.Gauge(metrics.MetricStoreEntries, "Number of routed services held in the store")
	return &Store{
		logger:  o.logger,
		entries: gauge,
		m:       make(map[routing.ServiceKey]*Entry),
	}
}

// Upsert 不存在时插入新条目；存在时替换路由和集群，仅当原条目没有监听者时才设置 listener。
// 返回 true 表示 listener 被安装，调用方需要为它订阅事件
func (s *Store) Upsert(key routing.ServiceKey, route routing.RouteDefinition, cluster routing.ClusterDefinition, listener events.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.m[key]
	if !ok {
		s.m[key] = &Entry{Key: key, Route: route, Cluster: cluster, Listener: listener}
		s.entries.Set(context.Background(), float64(len(s.m)))
		s.logger.Debug("entry added", clog.String("service", key.String()), clog.Int("destinations", len(cluster.Destinations)))
		return listener != nil
	}

	entry.Route = route
	entry.Cluster = cluster
	if entry.Listener == nil && listener != nil {
		entry.Listener = listener
		return true
	}
	return false
}

// RemoveByKey 原子地移除条目并返回它，调用方负责随后取消该条目监听者的订阅
func (s *Store) RemoveByKey(key routing.ServiceKey) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.m[key]
	if !ok {
		s.logger.Warn("entry to remove not found", clog.String("service", key.String()))
		return Entry{}, false
	}
	delete(s.m, key)
	s.entries.Set(context.Background(), float64(len(s.m)))
	s.logger.Info("entry removed", clog.String("service", key.String()))
	return *entry, true
}

// Get 返回条目的副本
func (s *Store) Get(key routing.ServiceKey) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.m[key]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Len 条目数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Snapshot 当前所有条目的路由和集群，不带修订号和变更信号
func (s *Store) Snapshot() *routing.ConfigSnapshot {
	s.mu.RLock()
	routes := make([]routing.RouteDefinition, 0, len(s.m))
	clusters := make([]routing.ClusterDefinition, 0, len(s.m))
	for _, entry := range s.m {
		routes = append(routes, entry.Route)
		clusters = append(clusters, entry.Cluster)
	}
	s.mu.RUnlock()

	return routing.NewSnapshot(routes, clusters, 0, nil)
}

// Clear 逐个先取消监听者的订阅再移除条目，返回取消订阅时遇到的错误。
// 取消订阅失败的条目同样会被移除
func (s *Store) Clear(ctx context.Context, subscriber events.Subscriber) error {
	s.mu.RLock()
	entries := make([]*Entry, 0, len(s.m))
	for _, entry := range s.m {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	var errs []error
	for _, entry := range entries {
		if entry.Listener != nil && subscriber != nil {
			if err := subscriber.Unsubscribe(ctx, entry.Key.Service, entry.Key.Group, entry.Listener); err != nil {
				errs = append(errs, xerrors.Wrapf(err, "unsubscribe %s", entry.Key))
			}
		}

		s.mu.Lock()
		if s.m[entry.Key] == entry {
			delete(s.m, entry.Key)
		}
		s.mu.Unlock()
	}

	s.entries.Set(ctx, float64(s.Len()))
	s.logger.Info("store cleared", clog.Int("entries", len(entries)))
	return xerrors.Combine(errs...)
}
