package proxy

import (
	"go.uber.org/fx"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/core/bandwidth"
	"github.com/portgate/go-portgate/internal/core/forward"
	"github.com/portgate/go-portgate/pkg/interfaces"
)

// Module 返回代理注册表 Fx 模块
func Module() fx.Option {
	return fx.Module("proxy",
		fx.Provide(NewFromConfig),
		fx.Provide(func(r *Registry) interfaces.ProxyRegistry { return r }),
	)
}

// NewFromConfig 从统一配置创建代理注册表
func NewFromConfig(cfg *config.Config, fwd *forward.Forwarder, bw *bandwidth.Counter) *Registry {
	return NewRegistry(cfg.Proxy, fwd, bw)
}
