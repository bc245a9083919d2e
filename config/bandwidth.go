// Package config 提供统一的配置管理
package config

// BandwidthConfig 带宽统计配置
//
// 配置带宽统计功能，支持按外部端口分类统计流量。
type BandwidthConfig struct {
	// Enabled 是否启用带宽统计
	// 默认值: true
	Enabled bool `json:"enabled"`

	// TrackPerPort 是否按外部端口统计
	// 默认值: true
	TrackPerPort bool `json:"track_per_port"`
}

// DefaultBandwidthConfig 返回默认的带宽统计配置
func DefaultBandwidthConfig() BandwidthConfig {
	return BandwidthConfig{
		Enabled:      true,
		TrackPerPort: true,
	}
}

// Validate 验证带宽统计配置的有效性
func (c *BandwidthConfig) Validate() error {
	// 带宽统计配置无需严格验证
	return nil
}
