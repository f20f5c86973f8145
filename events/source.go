package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ceyewan/routesync/xerrors"
)

// Source 外部事件源，Run 阻塞到 ctx 结束
type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// Publisher 事件源把解析好的事件交给它，通常是 *Bus
type Publisher interface {
	Publish(ctx context.Context, ev InstanceChangeEvent) error
}

// DecodeEvent 解析 JSON 事件体 {"serviceName":"...","groupName":"..."}
func DecodeEvent(data []byte) (InstanceChangeEvent, error) {
	var ev InstanceChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, xerrors.Wrap(ErrInvalidPayload, err.Error())
	}
	if ev.ServiceName == "" {
		return ev, xerrors.Wrap(ErrInvalidPayload, "serviceName is empty")
	}
	return ev, nil
}

// eventFromSubject 从主题 {prefix}.{group}.{service} 中解析事件，消息体为空时使用
func eventFromSubject(prefix, subject string) (InstanceChangeEvent, bool) {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return InstanceChangeEvent{}, false
	}
	group, service, ok := strings.Cut(rest, ".")
	if !ok || group == "" || service == "" {
		return InstanceChangeEvent{}, false
	}
	return InstanceChangeEvent{ServiceName: service, GroupName: group}, true
}
