package proxy

import "errors"

// 代理注册表错误定义
var (
	// ErrNotRunning 端口上没有运行中的监听器
	ErrNotRunning = errors.New("proxy was not running")

	// ErrStopTimeout 等待接受循环退出超时
	ErrStopTimeout = errors.New("timed out waiting for accept loop to exit")
)
