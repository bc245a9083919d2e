package bandwidth

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/pkg/interfaces"
)

// Module 返回带宽统计 Fx 模块
func Module() fx.Option {
	return fx.Module("bandwidth",
		fx.Provide(NewFromConfig),
		fx.Provide(func(c *Counter) interfaces.BandwidthReporter { return c }),
	)
}

// NewFromConfig 从统一配置创建带宽计数器
func NewFromConfig(cfg *config.Config) *Counter {
	return NewCounter(cfg.Bandwidth, clock.New())
}
