// Package events 处理注册中心的实例变更事件。
//
// 事件只携带 (serviceName, groupName)，监听者收到后重新查询该服务的实例，
// 再通过 Updater 写回路由表：
//
//	InstanceChangeEvent -> Bus -> EntryListener -> Fetcher.FetchService
//	                                            -> Updater.Apply / Updater.Remove
//	                                            -> Notifier.Fire
//
// 事件源可以是 NATS、Kafka，或者定期比对实例校验和的 Poller。
package events

import (
	"context"

	"github.com/ceyewan/routesync/routing"
)

// InstanceChangeEvent 某个服务的实例发生了变化
type InstanceChangeEvent struct {
	ServiceName string `json:"serviceName"`
	GroupName   string `json:"groupName"`
}

// Key 事件对应的服务标识，groupName 为空时归入 DEFAULT_GROUP
func (e InstanceChangeEvent) Key() routing.ServiceKey {
	return routing.NewServiceKey(e.ServiceName, e.GroupName)
}

// Listener 处理单个服务的变更事件。
// 实现必须是可比较的（通常是指针），Unsubscribe 按身份匹配
type Listener interface {
	OnEvent(ctx context.Context, ev InstanceChangeEvent)
}

// Subscriber 按服务订阅变更事件
type Subscriber interface {
	Subscribe(ctx context.Context, service, group string, listener Listener) error
	Unsubscribe(ctx context.Context, service, group string, listener Listener) error
}

// Fetcher 查询单个服务当前的实例
type Fetcher interface {
	FetchService(ctx context.Context, key routing.ServiceKey) ([]routing.ServiceInstance, error)
}

// Updater 把某个服务的最新实例写回路由表，监听者只能通过它修改路由
type Updater interface {
	Apply(ctx context.Context, key routing.ServiceKey, instances []routing.ServiceInstance) error
	Remove(ctx context.Context, key routing.ServiceKey) error
}

// Notifier 路由表变化后通知快照重建
type Notifier interface {
	Fire()
}
