package engine

import (
	"context"

	"go.uber.org/fx"

	"github.com/portgate/go-portgate/pkg/interfaces"
)

// Module 返回引擎 Fx 模块
func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(New),
		fx.Provide(func(e *Engine) interfaces.Engine { return e }),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle 注册生命周期钩子
//
// 启动时执行恢复（对已运行端口幂等），停止时关停所有监听器。
func registerLifecycle(lc fx.Lifecycle, e *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := e.Bootstrap(ctx)
			return err
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}
