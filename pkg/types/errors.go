package types

import "errors"

// 公共错误定义
var (
	// ErrUnsupportedProtocol 不支持的协议
	//
	// 在任何端口分配或监听器启动之前于边界处返回。
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)
