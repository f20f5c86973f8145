package routing

import (
	"sort"

	"github.com/ceyewan/routesync/reload"
)

// ConfigSnapshot 某一时刻完整的路由表，发布后不再修改
type ConfigSnapshot struct {
	Routes   []RouteDefinition   `json:"routes" msgpack:"routes"`
	Clusters []ClusterDefinition `json:"clusters" msgpack:"clusters"`
	Revision uint64              `json:"revision" msgpack:"revision"`

	signal *reload.Signal
}

// NewSnapshot 按 ID 排序后组装快照，signal 在快照过期时触发
func NewSnapshot(routes []RouteDefinition, clusters []ClusterDefinition, revision uint64, signal *reload.Signal) *ConfigSnapshot {
	r := append([]RouteDefinition(nil), routes...)
	c := append([]ClusterDefinition(nil), clusters...)
	sort.Slice(r, func(i, j int) bool { return r[i].RouteID < r[j].RouteID })
	sort.Slice(c, func(i, j int) bool { return c[i].ClusterID < c[j].ClusterID })

	return &ConfigSnapshot{
		Routes:   r,
		Clusters: c,
		Revision: revision,
		signal:   signal,
	}
}

// ChangeSignal 快照被新版本替换时触发
func (s *ConfigSnapshot) ChangeSignal() *reload.Signal {
	return s.signal
}

// Stale 是否已有更新的快照
func (s *ConfigSnapshot) Stale() bool {
	return s.signal != nil && s.signal.HasFired()
}

// Cluster 按 ID 查找集群
func (s *ConfigSnapshot) Cluster(id string) (ClusterDefinition, bool) {
	i := sort.Search(len(s.Clusters), func(i int) bool { return s.Clusters[i].ClusterID >= id })
	if i < len(s.Clusters) && s.Clusters[i].ClusterID == id {
		return s.Clusters[i], true
	}
	return ClusterDefinition{}, false
}
