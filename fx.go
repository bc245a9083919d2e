package portgate

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/app"
	"github.com/portgate/go-portgate/internal/core/bandwidth"
	"github.com/portgate/go-portgate/internal/core/engine"
	"github.com/portgate/go-portgate/internal/core/forward"
	"github.com/portgate/go-portgate/internal/core/mapping"
	"github.com/portgate/go-portgate/internal/core/proxy"
	"github.com/portgate/go-portgate/internal/gateway"
)

// buildFxApp 构建 Fx 应用
//
// 组装顺序（按依赖）：
//  1. 配置注入
//  2. 核心层: Bandwidth → Forward → Proxy → Mapping → Engine
//  3. 网关层: Gateway（可按配置禁用）
func buildFxApp(cfg *config.Config, rt *app.Runtime, extra ...fx.Option) (*fx.App, error) {
	// 配置验证（前置）
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		// 配置注入
		fx.Supply(cfg),

		// 核心层
		bandwidth.Module(),
		forward.Module(),
		proxy.Module(),
		mapping.Module(),
		engine.Module(),

		// 网关层
		gateway.Module(),

		// 组装结果回填
		fx.Populate(&rt.Engine, &rt.Store, &rt.Registry, &rt.Bandwidth, &rt.Gateway),

		// fx 自身的日志静默，业务日志走 logger 包
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	}

	modules = append(modules, extra...)

	return fx.New(modules...), nil
}
