package portgate

import "errors"

// 公共错误定义
var (
	// ErrNotStarted 网关未启动
	ErrNotStarted = errors.New("gateway not started")

	// ErrClosed 网关已关闭
	ErrClosed = errors.New("gateway closed")
)
