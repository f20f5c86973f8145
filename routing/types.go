// Package routing 定义注册中心实例到网关路由表的数据模型，以及纯函数式的构建器。
//
// 一个 ServiceKey 对应一条路由和一个集群：
//
//	route:   {routeId: "svc_ordersDEFAULT_GROUP", clusterId: "svc_orders-DEFAULT_GROUP", matchPath: "/api/orders/{**catch-all}"}
//	cluster: {clusterId: "svc_orders-DEFAULT_GROUP", destinations: [healthy && enabled 的实例]}
package routing

import (
	"strings"
	"time"
)

const (
	// DefaultGroup 注册中心默认分组
	DefaultGroup = "DEFAULT_GROUP"

	// GroupedNameSeparator 注册中心分组服务名的分隔符：group@@service
	GroupedNameSeparator = "@@"
)

// ServiceKey 一个被路由服务的唯一标识
type ServiceKey struct {
	Service string `json:"serviceName"`
	Group   string `json:"groupName"`
}

// NewServiceKey group 为空时使用 DEFAULT_GROUP
func NewServiceKey(service, group string) ServiceKey {
	if group == "" {
		group = DefaultGroup
	}
	return ServiceKey{Service: service, Group: group}
}

// ParseGroupedName 解析 "group@@service"，不带分组时归入 DEFAULT_GROUP
func ParseGroupedName(name string) ServiceKey {
	group, service, ok := strings.Cut(name, GroupedNameSeparator)
	if !ok {
		return NewServiceKey(name, "")
	}
	return NewServiceKey(service, group)
}

// GroupedName 注册中心接口使用的 "group@@service"
func (k ServiceKey) GroupedName() string {
	return k.Group + GroupedNameSeparator + k.Service
}

// ClusterID 集群 ID：service-group
func (k ServiceKey) ClusterID() string {
	return k.Service + "-" + k.Group
}

// RouteID 路由 ID：service 与 group 直接拼接
func (k ServiceKey) RouteID() string {
	return k.Service + k.Group
}

func (k ServiceKey) String() string {
	return k.GroupedName()
}

// ServiceInstance 注册中心返回的一个实例，字段与 /instance/list 的 hosts 元素一致
type ServiceInstance struct {
	InstanceID  string            `json:"instanceId"`
	IP          string            `json:"ip"`
	Port        int               `json:"port"`
	Weight      float64           `json:"weight"`
	Healthy     bool              `json:"healthy"`
	Enabled     bool              `json:"enabled"`
	Ephemeral   bool              `json:"ephemeral"`
	ClusterName string            `json:"clusterName"`
	ServiceName string            `json:"serviceName"` // 通常为 group@@service
	Metadata    map[string]string `json:"metadata"`
}

// Routable 只有健康且启用的实例才会成为 Destination
func (i ServiceInstance) Routable() bool {
	return i.Healthy && i.Enabled
}

// Destination 集群中的一个后端
type Destination struct {
	ID       string            `json:"id" msgpack:"id"`
	Address  string            `json:"address" msgpack:"address"`
	Metadata map[string]string `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// RouteDefinition 一条路由
type RouteDefinition struct {
	RouteID   string `json:"routeId" msgpack:"routeId"`
	ClusterID string `json:"clusterId" msgpack:"clusterId"`
	MatchPath string `json:"matchPath" msgpack:"matchPath"`
}

// ActiveHealthCheck 主动健康检查参数，由代理引擎执行
type ActiveHealthCheck struct {
	Enabled  bool          `json:"enabled" msgpack:"enabled"`
	Interval time.Duration `json:"interval" msgpack:"interval"`
	Timeout  time.Duration `json:"timeout" msgpack:"timeout"`
	Policy   string        `json:"policy" msgpack:"policy"`
}

// HealthCheckConfig 集群健康检查配置
type HealthCheckConfig struct {
	Active ActiveHealthCheck `json:"active" msgpack:"active"`
}

// ClusterDefinition 一个集群
type ClusterDefinition struct {
	ClusterID           string            `json:"clusterId" msgpack:"clusterId"`
	LoadBalancingPolicy string            `json:"loadBalancingPolicy" msgpack:"loadBalancingPolicy"`
	HealthCheck         HealthCheckConfig `json:"healthCheck" msgpack:"healthCheck"`
	Destinations        []Destination     `json:"destinations" msgpack:"destinations"`
}
