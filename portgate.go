package portgate

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/app"
	"github.com/portgate/go-portgate/internal/util/logger"
	"github.com/portgate/go-portgate/pkg/types"
)

var log = logger.Logger("portgate")

// closeTimeout Close 未携带上下文时的默认停止期限
const closeTimeout = 15 * time.Second

// Gateway 端口转发网关实例
//
// 由 Start 构造。零值不可用。
type Gateway struct {
	rt     *app.Runtime
	cfg    *config.Config
	closed atomic.Bool
}

// Start 构造并启动网关
//
// 依次完成组件组装、启动恢复（重建持久化映射的监听器）
// 和 HTTP 网关监听。返回后网关即可接受转发请求。
func Start(ctx context.Context, opts ...Option) (*Gateway, error) {
	o := &gatewayOptions{cfg: config.NewConfig()}
	for _, opt := range opts {
		opt(o)
	}

	rt := &app.Runtime{}
	fxApp, err := buildFxApp(o.cfg, rt, o.fxOpts...)
	if err != nil {
		return nil, err
	}

	if err := fxApp.Start(ctx); err != nil {
		return nil, err
	}
	rt.SetStopper(fxApp.Stop)

	log.Info("网关已启动",
		slog.String("store", o.cfg.Store.Path),
		slog.Bool("http_gateway", rt.Gateway != nil))

	return &Gateway{rt: rt, cfg: o.cfg}, nil
}

// RequestForward 为 (host, protocol) 请求转发，返回外部端口
func (g *Gateway) RequestForward(ctx context.Context, host, protocol string) (int, error) {
	if g.closed.Load() {
		return 0, ErrClosed
	}
	return g.rt.Engine.RequestForward(ctx, host, protocol)
}

// Drop 删除一条映射并停止其监听器
func (g *Gateway) Drop(ctx context.Context, host, protocol string) error {
	if g.closed.Load() {
		return ErrClosed
	}
	return g.rt.Engine.Drop(ctx, host, protocol)
}

// Mappings 返回持久化的映射集合
func (g *Gateway) Mappings() ([]types.Mapping, error) {
	if g.closed.Load() {
		return nil, ErrClosed
	}
	return g.rt.Engine.Mappings()
}

// Status 返回所有活跃代理的快照
func (g *Gateway) Status() []types.ProxySnapshot {
	if g.closed.Load() {
		return nil
	}
	return g.rt.Engine.Status()
}

// Bandwidth 返回全局带宽统计
func (g *Gateway) Bandwidth() types.BandwidthStats {
	if g.closed.Load() {
		return types.BandwidthStats{}
	}
	return g.rt.Bandwidth.Totals()
}

// GatewayAddr 返回 HTTP 网关的实际监听地址
//
// 网关被禁用时返回空字符串。
func (g *Gateway) GatewayAddr() string {
	if g.rt.Gateway == nil {
		return ""
	}
	return g.rt.Gateway.Addr()
}

// Config 返回网关的生效配置
func (g *Gateway) Config() *config.Config {
	return g.cfg
}

// Close 停止网关
//
// 停止所有监听器并落盘；映射存储保留，下次 Start 时恢复。
// 重复调用为无操作。
func (g *Gateway) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	log.Info("网关正在关闭")
	return g.rt.Stop(ctx)
}
