// Package config 提供 routesync 的配置加载与热更新能力，基于 Viper 实现。
//
// 加载优先级：环境变量 > .env > 环境特定配置 {name}.{ENV} > 基础配置 {name}.{type}
//
//	loader, _ := config.New(&config.Config{Name: "routesync", Paths: []string{"./config"}})
//	_ = loader.Load(ctx)
//
//	var app config.AppConfig
//	_ = loader.Unmarshal(&app)
//
//	ch, _ := loader.Watch(ctx, "gateway")
//	for ev := range ch {
//		// 网关路由选项变化，触发重建
//	}
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 从所有来源加载配置并开始监听文件变化
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 key 反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 校验当前配置
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
