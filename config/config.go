// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Store.StartPort = 20000
//	cfg.Gateway.Enabled = true
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
package config

// Config 是 portgate 的完整配置结构
//
// 该结构体嵌入了所有组件的子配置，提供统一的配置接口。
// 配置按照功能模块组织：
//   - Store: 映射存储与端口分配
//   - Proxy: 监听器生命周期与注册表
//   - Forward: 每连接转发
//   - Gateway: HTTP 接入/状态网关
//   - Bandwidth: 带宽统计
type Config struct {
	// Store 映射存储配置
	Store StoreConfig `json:"store"`

	// Proxy 代理注册表配置
	Proxy ProxyConfig `json:"proxy"`

	// Forward 连接转发配置
	Forward ForwardConfig `json:"forward"`

	// Gateway HTTP 网关配置
	Gateway GatewayConfig `json:"gateway"`

	// Bandwidth 带宽统计配置
	Bandwidth BandwidthConfig `json:"bandwidth"`
}

// NewConfig 创建默认配置
//
// 返回的配置使用所有组件的默认值，适用于大多数场景。
func NewConfig() *Config {
	return &Config{
		Store:     DefaultStoreConfig(),
		Proxy:     DefaultProxyConfig(),
		Forward:   DefaultForwardConfig(),
		Gateway:   DefaultGatewayConfig(),
		Bandwidth: DefaultBandwidthConfig(),
	}
}
