package naming

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/xerrors"
)

// ServiceList /service/list 的响应
type ServiceList struct {
	Count int      `json:"count"`
	Doms  []string `json:"doms"`
}

// Selector 服务列表的过滤条件，只有 label 类型会发送给服务端
type Selector struct {
	Type       string `json:"type"`
	Expression string `json:"expression,omitempty"`
}

// ServiceInfo /instance/list 的响应
type ServiceInfo struct {
	Name                     string                    `json:"name"`
	GroupName                string                    `json:"groupName"`
	Clusters                 string                    `json:"clusters"`
	CacheMillis              int64                     `json:"cacheMillis"`
	Hosts                    []routing.ServiceInstance `json:"hosts"`
	LastRefTime              int64                     `json:"lastRefTime"`
	Checksum                 string                    `json:"checksum"`
	AllIPs                   bool                      `json:"allIPs"`
	ReachProtectionThreshold bool                      `json:"reachProtectionThreshold"`
}

// GetServiceList 分页列出分组下的服务名
func (c *Client) GetServiceList(ctx context.Context, pageNo, pageSize int, group string, selector *Selector) (*ServiceList, error) {
	params := url.Values{
		"groupName": {group},
		"pageNo":    {strconv.Itoa(pageNo)},
		"pageSize":  {strconv.Itoa(pageSize)},
	}
	if selector != nil && selector.Type == "label" {
		raw, err := json.Marshal(selector)
		if err != nil {
			return nil, xerrors.Wrap(err, "encode selector")
		}
		params.Set("selector", string(raw))
	}

	body, err := c.Call(ctx, "/service/list", params, nil, http.MethodGet)
	if err != nil {
		return nil, err
	}

	list := &ServiceList{}
	if len(body) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(body, list); err != nil {
		return nil, xerrors.Wrapf(err, "decode service list of group %s", group)
	}
	return list, nil
}

// QueryInstances 查询服务的实例，服务端返回 304 时得到空的 ServiceInfo
func (c *Client) QueryInstances(ctx context.Context, service, group, clusters string, udpPort int, healthyOnly bool) (*ServiceInfo, error) {
	key := routing.NewServiceKey(service, group)
	params := url.Values{
		paramServiceName: {key.GroupedName()},
		"clusters":       {clusters},
		"udpPort":        {strconv.Itoa(udpPort)},
		"clientIP":       {localIP()},
		"healthyOnly":    {strconv.FormatBool(healthyOnly)},
	}

	body, err := c.Call(ctx, "/instance/list", params, nil, http.MethodGet)
	if err != nil {
		return nil, err
	}

	info := &ServiceInfo{Name: key.GroupedName(), GroupName: key.Group, Clusters: clusters}
	if len(body) == 0 {
		return info, nil
	}
	if err := json.Unmarshal(body, info); err != nil {
		return nil, xerrors.Wrapf(err, "decode instances of %s", key)
	}
	return info, nil
}

// ServerHealthy 任一服务端报告 status=UP 即为健康，任何错误都视为不健康
func (c *Client) ServerHealthy(ctx context.Context) bool {
	body, err := c.Call(ctx, "/operator/metrics", nil, nil, http.MethodGet)
	if err != nil {
		return false
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false
	}
	return resp.Status == "UP"
}

var localIP = sync.OnceValue(func() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return "127.0.0.1"
})
