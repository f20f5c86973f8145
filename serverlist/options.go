package serverlist

import (
	"net/http"

	"github.com/ceyewan/routesync/clog"
)

// Option Resolver 选项
type Option func(*options)

type options struct {
	logger clog.Logger
	client *http.Client
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("serverlist")
		}
	}
}

// WithHTTPClient 替换拉取地址列表使用的 HTTP 客户端
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}
