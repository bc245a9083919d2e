// Package config 提供统一的配置管理
package config

import (
	"fmt"
	"time"
)

// ProxyConfig 代理注册表配置
type ProxyConfig struct {
	// ListenHost 监听器绑定的本地地址
	// 默认值: "0.0.0.0"
	ListenHost string `json:"listen_host"`

	// StopTimeout 停止监听器时等待接受循环确认的上限
	// 默认值: 5s
	StopTimeout Duration `json:"stop_timeout"`

	// MaxConnsPerProxy 单个代理的并发连接上限，0 表示不限制
	// 默认值: 0
	MaxConnsPerProxy int `json:"max_conns_per_proxy"`

	// CloseConnsOnStop 停止监听器时是否同时关闭在途连接
	//
	// false（默认）保持源语义：stop 只停止接受新连接，
	// 已建立的连接继续运行直到自然结束。
	CloseConnsOnStop bool `json:"close_conns_on_stop"`

	// ConnHistorySize 每个代理保留的已关闭连接快照数量
	// 默认值: 32
	ConnHistorySize int `json:"conn_history_size"`
}

// DefaultProxyConfig 返回默认的代理注册表配置
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		ListenHost:       "0.0.0.0",
		StopTimeout:      Duration(5 * time.Second),
		MaxConnsPerProxy: 0,
		CloseConnsOnStop: false,
		ConnHistorySize:  32,
	}
}

// Validate 验证代理注册表配置的有效性
func (c *ProxyConfig) Validate() error {
	if c.ListenHost == "" {
		return fmt.Errorf("proxy.listen_host must not be empty")
	}
	if c.StopTimeout.Duration() <= 0 {
		return fmt.Errorf("proxy.stop_timeout must be positive, got %s", c.StopTimeout)
	}
	if c.MaxConnsPerProxy < 0 {
		return fmt.Errorf("proxy.max_conns_per_proxy must not be negative, got %d", c.MaxConnsPerProxy)
	}
	if c.ConnHistorySize <= 0 {
		return fmt.Errorf("proxy.conn_history_size must be positive, got %d", c.ConnHistorySize)
	}
	return nil
}
