package routing

import "strings"

// Formatter 把服务名转换为路由路径中的一段
type Formatter func(serviceName string) string

// DefaultFormatter 取第一个 "_" 之后的部分并转为小写，"svc_Orders" -> "orders"。
// 不含 "_" 的服务名整体转小写
func DefaultFormatter(serviceName string) string {
	_, rest, ok := strings.Cut(serviceName, "_")
	if !ok {
		return strings.ToLower(serviceName)
	}
	if i := strings.IndexByte(rest, '_'); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(rest)
}

// LowerFormatter 服务名整体转小写
func LowerFormatter(serviceName string) string {
	return strings.ToLower(serviceName)
}

func trimSlashes(s string) string {
	return strings.Trim(s, "/")
}
