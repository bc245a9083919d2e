// Package config 提供统一的配置管理
package config

import "fmt"

// Validate 验证完整配置的有效性
//
// 依次验证所有子配置，遇到第一个错误即返回。
func (c *Config) Validate() error {
	validators := []struct {
		name     string
		validate func() error
	}{
		{"store", c.Store.Validate},
		{"proxy", c.Proxy.Validate},
		{"forward", c.Forward.Validate},
		{"gateway", c.Gateway.Validate},
		{"bandwidth", c.Bandwidth.Validate},
	}

	for _, v := range validators {
		if err := v.validate(); err != nil {
			return fmt.Errorf("%s config: %w", v.name, err)
		}
	}
	return nil
}
