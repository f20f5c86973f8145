package metrics

import (
	"strconv"
)

const (
	// 常见的标签
	LabelRoute       = "route"
	LabelStatusClass = "status_class"
	LabelOutcome     = "outcome"
	LabelServer      = "server"
	LabelGroup       = "group"
	LabelTrigger     = "trigger"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// UnknownRoute 未命中路由时的统一标签值
const UnknownRoute = "unknown"

// routesync 各组件的指标名
const (
	MetricNamingRequests        = "naming_requests_total"
	MetricNamingRequestDuration = "naming_request_duration_seconds"
	MetricDiscoveryInstances    = "discovery_instances"
	MetricSnapshotRebuilds      = "provider_rebuilds_total"
	MetricSnapshotRoutes        = "provider_routes"
	MetricStoreEntries          = "store_entries"
	MetricEventsReceived        = "events_received_total"
)

// HTTPStatusClass 返回 HTTP 状态类标签值：1xx/2xx/3xx/4xx/5xx/unknown
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// HTTPOutcome 2xx 与 3xx 视为成功
func HTTPOutcome(status int) string {
	if status >= 200 && status < 400 {
		return OutcomeSuccess
	}
	return OutcomeError
}

// ErrorOutcome 按 err 是否为 nil 给出结果标签
func ErrorOutcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return OutcomeError
}
