package forward

import (
	"go.uber.org/fx"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/core/bandwidth"
)

// Module 返回连接转发 Fx 模块
func Module() fx.Option {
	return fx.Module("forward",
		fx.Provide(NewFromConfig),
	)
}

// NewFromConfig 从统一配置创建连接转发器
func NewFromConfig(cfg *config.Config, bw *bandwidth.Counter) *Forwarder {
	return New(cfg.Forward, bw)
}
