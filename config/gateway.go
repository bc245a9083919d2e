// Package config 提供统一的配置管理
package config

import (
	"fmt"
	"time"
)

// GatewayConfig HTTP 网关配置
//
// 网关承载请求接入（/forward）、映射展示（/mappings）、
// 状态查询（/status, /ws/status）和指标（/metrics）。
type GatewayConfig struct {
	// Enabled 是否启用 HTTP 网关
	// 默认值: true
	Enabled bool `json:"enabled"`

	// Addr 网关监听地址
	// 默认值: "127.0.0.1:8443"
	Addr string `json:"addr"`

	// EnableMetrics 是否暴露 Prometheus /metrics
	// 默认值: true
	EnableMetrics bool `json:"enable_metrics"`

	// WSPushInterval WebSocket 状态推送间隔
	// 默认值: 2s
	WSPushInterval Duration `json:"ws_push_interval"`
}

// DefaultGatewayConfig 返回默认的 HTTP 网关配置
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Enabled:        true,
		Addr:           "127.0.0.1:8443",
		EnableMetrics:  true,
		WSPushInterval: Duration(2 * time.Second),
	}
}

// Validate 验证 HTTP 网关配置的有效性
func (c *GatewayConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("gateway.addr must not be empty when gateway is enabled")
	}
	if c.WSPushInterval.Duration() <= 0 {
		return fmt.Errorf("gateway.ws_push_interval must be positive, got %s", c.WSPushInterval)
	}
	return nil
}
