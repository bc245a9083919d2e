// Package config 提供统一的配置管理
package config

import (
	"fmt"
	"time"
)

// ForwardConfig 连接转发配置
type ForwardConfig struct {
	// DialTimeout 连接远端目标的超时上限
	// 默认值: 10s
	DialTimeout Duration `json:"dial_timeout"`

	// BufferSize 单方向拷贝缓冲区大小（字节）
	// 默认值: 4096
	BufferSize int `json:"buffer_size"`
}

// DefaultForwardConfig 返回默认的连接转发配置
func DefaultForwardConfig() ForwardConfig {
	return ForwardConfig{
		DialTimeout: Duration(10 * time.Second),
		BufferSize:  4096,
	}
}

// Validate 验证连接转发配置的有效性
func (c *ForwardConfig) Validate() error {
	if c.DialTimeout.Duration() <= 0 {
		return fmt.Errorf("forward.dial_timeout must be positive, got %s", c.DialTimeout)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("forward.buffer_size must be positive, got %d", c.BufferSize)
	}
	return nil
}
