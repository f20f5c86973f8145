// routesync 把注册中心的服务实例同步为反向代理的路由与集群配置。
//
//	routesync --config ./config --name routesync
//
// 首个快照构建失败时以非零状态退出；SIGINT/SIGTERM 触发逆序关闭。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/config"
	"github.com/ceyewan/routesync/internal/app"
)

func main() {
	var (
		paths     []string
		name      string
		envPrefix string
	)
	pflag.StringSliceVarP(&paths, "config", "c", nil, "config search paths (default . and ./config)")
	pflag.StringVar(&name, "name", "routesync", "config file name without extension")
	pflag.StringVar(&envPrefix, "env-prefix", "ROUTESYNC", "environment variable prefix")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &config.Config{Name: name, Paths: paths, EnvPrefix: envPrefix}); err != nil {
		fmt.Fprintln(os.Stderr, "routesync:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, loaderCfg *config.Config) error {
	loader, cfg, err := config.Load(ctx, loaderCfg)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.App.Name == "" {
		cfg.App.Name = "routesync"
	}

	logger, err := clog.New(&cfg.Log, clog.WithNamespace(cfg.App.Name), clog.WithStandardContext(), clog.WithTraceContext())
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", clog.String("env", cfg.App.Env))

	a, err := app.New(ctx, loader, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("routesync exited", clog.Error(err))
		return err
	}
	logger.Info("routesync stopped")
	return nil
}
