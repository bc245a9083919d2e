// Package app 提供 fx 组装结果的承载结构
package app

import (
	"context"

	"github.com/portgate/go-portgate/internal/gateway"
	"github.com/portgate/go-portgate/pkg/interfaces"
)

// Runtime 表示一个已通过 fx 组装完成的 portgate 运行时
//
// 根门面（portgate.Gateway）组合 Runtime 暴露用户体验 API。
type Runtime struct {
	Engine    interfaces.Engine
	Store     interfaces.MappingStore
	Registry  interfaces.ProxyRegistry
	Bandwidth interfaces.BandwidthReporter

	// Gateway 网关服务；配置禁用时为 nil
	Gateway *gateway.Server

	stop func(ctx context.Context) error
}

// SetStopper 设置停止函数（触发 fx 生命周期 OnStop）
func (r *Runtime) SetStopper(stop func(ctx context.Context) error) {
	r.stop = stop
}

// Stop 停止运行时
func (r *Runtime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}
