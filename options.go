package portgate

import (
	"time"

	"go.uber.org/fx"

	"github.com/portgate/go-portgate/config"
)

// gatewayOptions Start 的内部配置载体
type gatewayOptions struct {
	cfg    *config.Config
	fxOpts []fx.Option
}

// Option 配置 portgate 网关的函数选项
type Option func(*gatewayOptions)

// WithConfig 使用完整配置（覆盖之前所有字段级选项）
func WithConfig(cfg *config.Config) Option {
	return func(o *gatewayOptions) {
		o.cfg = cfg
	}
}

// WithStorePath 设置映射存储文件路径
func WithStorePath(path string) Option {
	return func(o *gatewayOptions) {
		o.cfg.Store.Path = path
	}
}

// WithStartPort 设置空集合时分配的起始外部端口
func WithStartPort(port int) Option {
	return func(o *gatewayOptions) {
		o.cfg.Store.StartPort = port
	}
}

// WithListenHost 设置监听器绑定的本地地址
func WithListenHost(host string) Option {
	return func(o *gatewayOptions) {
		o.cfg.Proxy.ListenHost = host
	}
}

// WithDialTimeout 设置连接远端目标的超时
func WithDialTimeout(d time.Duration) Option {
	return func(o *gatewayOptions) {
		o.cfg.Forward.DialTimeout = config.Duration(d)
	}
}

// WithCloseConnsOnStop 设置停止监听器时是否拆除在途连接
func WithCloseConnsOnStop(close bool) Option {
	return func(o *gatewayOptions) {
		o.cfg.Proxy.CloseConnsOnStop = close
	}
}

// WithGatewayAddr 设置 HTTP 网关监听地址
func WithGatewayAddr(addr string) Option {
	return func(o *gatewayOptions) {
		o.cfg.Gateway.Enabled = true
		o.cfg.Gateway.Addr = addr
	}
}

// WithGatewayDisabled 禁用 HTTP 网关（仅保留编程接口）
func WithGatewayDisabled() Option {
	return func(o *gatewayOptions) {
		o.cfg.Gateway.Enabled = false
	}
}

// WithFxOption 追加自定义 Fx 选项（高级用法）
func WithFxOption(opts ...fx.Option) Option {
	return func(o *gatewayOptions) {
		o.fxOpts = append(o.fxOpts, opts...)
	}
}
