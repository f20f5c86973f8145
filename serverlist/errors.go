package serverlist

import "github.com/ceyewan/routesync/xerrors"

var (
	// ErrNoServer 既没有配置地址也没有配置地址服务器
	ErrNoServer = xerrors.New("serverlist: no server address or endpoint configured")
	// ErrEmptyServerList 地址服务器返回了空列表
	ErrEmptyServerList = xerrors.New("serverlist: endpoint returned empty server list")
)
