package routing

import "time"

// 默认值
const (
	DefaultPrefix              = "api"
	DefaultLoadBalancingPolicy = "PowerOfTwoChoices"
	DefaultHealthPolicy        = "ConsecutiveFailures"
	DefaultHealthInterval      = 10 // 秒
	DefaultHealthTimeout       = 3  // 秒
)

// GatewayOptions 网关路由选项，对应配置中的 gateway 段
//
//	gateway:
//	  prefix: api
//	  services:
//	    - service_name: svc_orders
//	      group_name: DEFAULT_GROUP
//	      load_balancing_policy: RoundRobin
//	      healthy: {policy: ConsecutiveFailures, interval: 10, timeout: 3}
type GatewayOptions struct {
	Prefix   string           `mapstructure:"prefix" json:"prefix"`
	Services []ServiceOptions `mapstructure:"services" json:"services"`
}

// ServiceOptions 单个服务的路由选项
type ServiceOptions struct {
	ServiceName         string         `mapstructure:"service_name" json:"serviceName"`
	GroupName           string         `mapstructure:"group_name" json:"groupName"`
	LoadBalancingPolicy string         `mapstructure:"load_balancing_policy" json:"loadBalancingPolicy"`
	Healthy             HealthyOptions `mapstructure:"healthy" json:"healthy"`
}

// HealthyOptions 主动健康检查选项，时间单位为秒
type HealthyOptions struct {
	Policy   string `mapstructure:"policy" json:"policy"`
	Timeout  int    `mapstructure:"timeout" json:"timeout"`
	Interval int    `mapstructure:"interval" json:"interval"`
}

// PathPrefix 返回去掉首尾斜杠的前缀，未配置时为 "api"
func (o *GatewayOptions) PathPrefix() string {
	if o == nil || o.Prefix == "" {
		return DefaultPrefix
	}
	return trimSlashes(o.Prefix)
}

// Lookup 查找服务的选项。
// 优先匹配服务名和分组都相同的项，其次匹配未指定分组的同名项，都没有时返回默认值
func (o *GatewayOptions) Lookup(key ServiceKey) ServiceOptions {
	var fallback *ServiceOptions
	if o != nil {
		for i := range o.Services {
			svc := &o.Services[i]
			if svc.ServiceName != key.Service {
				continue
			}
			if svc.GroupName == key.Group {
				return svc.withDefaults(key)
			}
			if svc.GroupName == "" && fallback == nil {
				fallback = svc
			}
		}
	}
	if fallback != nil {
		return fallback.withDefaults(key)
	}
	return ServiceOptions{ServiceName: key.Service, GroupName: key.Group}.withDefaults(key)
}

func (s ServiceOptions) withDefaults(key ServiceKey) ServiceOptions {
	s.ServiceName = key.Service
	s.GroupName = key.Group
	if s.LoadBalancingPolicy == "" {
		s.LoadBalancingPolicy = DefaultLoadBalancingPolicy
	}
	if s.Healthy.Policy == "" {
		s.Healthy.Policy = DefaultHealthPolicy
	}
	if s.Healthy.Interval <= 0 {
		s.Healthy.Interval = DefaultHealthInterval
	}
	if s.Healthy.Timeout <= 0 {
		s.Healthy.Timeout = DefaultHealthTimeout
	}
	return s
}

// HealthCheck 转换为集群的健康检查配置
func (s ServiceOptions) HealthCheck() HealthCheckConfig {
	return HealthCheckConfig{
		Active: ActiveHealthCheck{
			Enabled:  true,
			Interval: time.Duration(s.Healthy.Interval) * time.Second,
			Timeout:  time.Duration(s.Healthy.Timeout) * time.Second,
			Policy:   s.Healthy.Policy,
		},
	}
}
