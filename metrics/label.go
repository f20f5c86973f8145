package metrics

// Label 指标标签
//
// 标签值应保持低基数：路由模板可以，原始 URL 和实例 ID 不行。
type Label struct {
	Key   string
	Value string
}

// L 构造 Label
//
//	counter.Inc(ctx, metrics.L("method", "GET"))
func L(key, value string) Label {
	return Label{
		Key:   key,
		Value: value,
	}
}
