package mapping

import (
	"go.uber.org/fx"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/pkg/interfaces"
)

// Module 返回映射存储 Fx 模块
func Module() fx.Option {
	return fx.Module("mapping",
		fx.Provide(NewFromConfig),
	)
}

// NewFromConfig 从统一配置创建映射存储
func NewFromConfig(cfg *config.Config) interfaces.MappingStore {
	return NewFileStore(cfg.Store)
}
