package events

import (
	"context"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/routing"
)

// EntryListener 一个路由条目的监听者。
// 收到事件后重新查询该服务，实例为空时移除条目，否则更新条目，最后通知重建快照
type EntryListener struct {
	key      routing.ServiceKey
	fetcher  Fetcher
	updater  Updater
	notifier Notifier
	logger   clog.Logger
}

// NewEntryListener 每个 ServiceKey 创建一个
func NewEntryListener(key routing.ServiceKey, fetcher Fetcher, updater Updater, notifier Notifier, opts ...Option) *EntryListener {
	o := applyOptions(opts)
	return &EntryListener{
		key:      key,
		fetcher:  fetcher,
		updater:  updater,
		notifier: notifier,
		logger:   o.logger.WithNamespace("listener").With(clog.String("service", key.String())),
	}
}

// Key 监听的服务
func (l *EntryListener) Key() routing.ServiceKey {
	return l.key
}

// OnEvent 查询失败时保留原有路由，不触发重建
func (l *EntryListener) OnEvent(ctx context.Context, ev InstanceChangeEvent) {
	key := ev.Key()
	if key != l.key {
		l.logger.WarnContext(ctx, "event for another service ignored", clog.String("event_service", key.String()))
		return
	}

	instances, err := l.fetcher.FetchService(ctx, key)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to query instances", clog.Error(err))
		return
	}

	if len(instances) == 0 {
		l.logger.InfoContext(ctx, "service has no instance, removing route")
		err = l.updater.Remove(ctx, key)
	} else {
		l.logger.InfoContext(ctx, "updating route", clog.Int("instances", len(instances)))
		err = l.updater.Apply(ctx, key, instances)
	}
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to update route", clog.Error(err))
	}

	l.notifier.Fire()
}
