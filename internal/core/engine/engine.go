// Package engine 提供端口转发引擎门面
//
// 引擎把映射存储、代理注册表和启动恢复组合成外部协作方
// 可消费的窄接口：请求转发、管理性删除、只读查询、恢复与关停。
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/portgate/go-portgate/internal/core/bootstrap"
	"github.com/portgate/go-portgate/internal/core/proxy"
	"github.com/portgate/go-portgate/internal/util/logger"
	"github.com/portgate/go-portgate/pkg/interfaces"
	"github.com/portgate/go-portgate/pkg/types"
)

var log = logger.Logger("core/engine")

// Engine 端口转发引擎
type Engine struct {
	store    interfaces.MappingStore
	registry interfaces.ProxyRegistry
}

// 确保实现接口
var _ interfaces.Engine = (*Engine)(nil)

// New 创建引擎
func New(store interfaces.MappingStore, registry interfaces.ProxyRegistry) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
	}
}

// RequestForward 为 (host, protocol) 请求转发，返回外部端口
//
// 协议在任何分配之前校验；解析映射（必要时分配并持久化）
// 后确保监听器运行。
func (e *Engine) RequestForward(ctx context.Context, host, protocol string) (int, error) {
	proto, err := types.ParseProtocol(protocol)
	if err != nil {
		return 0, err
	}
	if host == "" {
		return 0, fmt.Errorf("remote host must not be empty")
	}

	externalPort, err := e.store.Resolve(host, proto)
	if err != nil {
		return 0, err
	}

	internalPort, _ := proto.InternalPort()
	if err := e.registry.Ensure(ctx, externalPort, host, internalPort); err != nil {
		// 映射已持久化，监听器留待下一次 Bootstrap 或重新请求时恢复
		return 0, fmt.Errorf("ensure listener: %w", err)
	}

	log.Info("转发已就绪",
		"host", host,
		"protocol", proto,
		"externalPort", externalPort,
		"internalPort", internalPort)
	return externalPort, nil
}

// Drop 管理性删除一条映射并停止其监听器
func (e *Engine) Drop(ctx context.Context, host, protocol string) error {
	proto, err := types.ParseProtocol(protocol)
	if err != nil {
		return err
	}

	port, found, err := e.store.Delete(host, proto)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no mapping for %s/%s", host, proto)
	}

	if err := e.registry.Stop(port); err != nil && !isNotRunning(err) {
		return fmt.Errorf("stop listener: %w", err)
	}

	log.Info("映射已删除", "host", host, "protocol", proto, "port", port)
	return nil
}

// Mappings 返回持久化的映射集合
func (e *Engine) Mappings() ([]types.Mapping, error) {
	return e.store.Load()
}

// Status 返回代理注册表快照
func (e *Engine) Status() []types.ProxySnapshot {
	return e.registry.Snapshot()
}

// Bootstrap 从映射存储重建所有监听器
func (e *Engine) Bootstrap(ctx context.Context) (types.BootstrapSummary, error) {
	return bootstrap.Run(ctx, e.store, e.registry)
}

// Shutdown 停止所有活跃监听器
func (e *Engine) Shutdown(_ context.Context) error {
	return e.registry.StopAll()
}

// isNotRunning 判断是否为"本就未运行"
func isNotRunning(err error) bool {
	return errors.Is(err, proxy.ErrNotRunning)
}
