package gateway

import (
	"context"

	"go.uber.org/fx"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/pkg/interfaces"
)

// Module 返回网关 Fx 模块
func Module() fx.Option {
	return fx.Module("gateway",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// GatewayParams 网关依赖参数
type GatewayParams struct {
	fx.In

	Cfg    *config.Config
	Engine interfaces.Engine
	BW     interfaces.BandwidthReporter `optional:"true"`
}

// NewFromParams 从参数创建网关服务
//
// 配置禁用时返回 nil，生命周期钩子会跳过。
func NewFromParams(params GatewayParams) *Server {
	if !params.Cfg.Gateway.Enabled {
		return nil
	}
	return New(params.Cfg.Gateway, params.Engine, params.BW)
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return // 禁用时跳过
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop(ctx)
		},
	})
}
