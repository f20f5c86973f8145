package routing

import (
	"fmt"
	"strings"
)

const (
	// MetadataPrefix 只有以此前缀开头（不区分大小写）的实例元数据会复制到 Destination
	MetadataPrefix = "yarp"

	// FailureRateKey 被动健康检查的失败率阈值元数据
	FailureRateKey = "TransportFailureRateHealthPolicy.RateLimit"

	// DefaultFailureRate 未显式设置时注入的失败率阈值
	DefaultFailureRate = "0.5"

	// SecureMetadataKey 实例元数据中存在此 key 时使用 https
	SecureMetadataKey = "secure"

	// CatchAll 路由路径末尾的通配段
	CatchAll = "{**catch-all}"
)

// Builder 把一个服务的实例列表转换为路由与集群定义，不做任何 I/O
type Builder struct {
	options   *GatewayOptions
	formatter Formatter
}

// NewBuilder formatter 为 nil 时使用 DefaultFormatter
func NewBuilder(options *GatewayOptions, formatter Formatter) *Builder {
	if formatter == nil {
		formatter = DefaultFormatter
	}
	return &Builder{options: options, formatter: formatter}
}

// Build 同样的输入（包括实例顺序）总是得到结构相同的结果
func (b *Builder) Build(key ServiceKey, instances []ServiceInstance) (RouteDefinition, ClusterDefinition) {
	opts := b.options.Lookup(key)

	route := RouteDefinition{
		RouteID:   key.RouteID(),
		ClusterID: key.ClusterID(),
		MatchPath: b.MatchPath(key.Service),
	}

	cluster := ClusterDefinition{
		ClusterID:           key.ClusterID(),
		LoadBalancingPolicy: opts.LoadBalancingPolicy,
		HealthCheck:         opts.HealthCheck(),
		Destinations:        BuildDestinations(instances),
	}

	return route, cluster
}

// MatchPath /{prefix}/{formatted}/{**catch-all}
// 格式化结果为空（如 svc_）时退回小写的完整服务名，路径中不出现空段
func (b *Builder) MatchPath(serviceName string) string {
	segment := trimSlashes(b.formatter(serviceName))
	if segment == "" {
		segment = trimSlashes(strings.ToLower(serviceName))
	}
	prefix := b.options.PathPrefix()
	if prefix == "" {
		return "/" + segment + "/" + CatchAll
	}
	return "/" + prefix + "/" + segment + "/" + CatchAll
}

// BuildDestinations 过滤出可路由的实例，并为每个实例生成唯一 ID：
// {clusterName}({serviceName}-{index})，index 从 1 开始，逐个递增
func BuildDestinations(instances []ServiceInstance) []Destination {
	destinations := make([]Destination, 0, len(instances))
	index := 1
	for _, inst := range instances {
		if !inst.Routable() {
			continue
		}
		destinations = append(destinations, Destination{
			ID:       fmt.Sprintf("%s(%s-%d)", inst.ClusterName, inst.ServiceName, index),
			Address:  instanceAddress(inst),
			Metadata: filterMetadata(inst.Metadata),
		})
		index++
	}
	return destinations
}

func instanceAddress(inst ServiceInstance) string {
	scheme := "http"
	if _, ok := inst.Metadata[SecureMetadataKey]; ok {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, inst.IP, inst.Port)
}

// filterMetadata 保留带前缀的元数据，并在缺省时注入失败率阈值
func filterMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, 1)
	for k, v := range metadata {
		if len(k) >= len(MetadataPrefix) && strings.EqualFold(k[:len(MetadataPrefix)], MetadataPrefix) {
			out[k] = v
		}
	}
	if !hasKeyFold(out, FailureRateKey) {
		out[FailureRateKey] = DefaultFailureRate
	}
	return out
}

func hasKeyFold(m map[string]string, key string) bool {
	for k := range m {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}
