// Package config 提供统一的配置管理
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// StoreConfig 映射存储配置
//
// 映射集合持久化为单个扁平 JSON 文件；
// 外部端口按高水位策略分配（max+1），不回收已删除映射的端口。
type StoreConfig struct {
	// Path 映射存储文件路径
	// 为空时使用 ~/.portgate/port_mappings.json
	Path string `json:"path"`

	// StartPort 空集合时分配的起始外部端口
	// 默认值: 10000
	StartPort int `json:"start_port"`
}

// DefaultStoreConfig 返回默认的映射存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Path:      defaultStorePath(),
		StartPort: 10000,
	}
}

// Validate 验证映射存储配置的有效性
func (c *StoreConfig) Validate() error {
	if c.StartPort <= 0 || c.StartPort > 65535 {
		return fmt.Errorf("store.start_port must be in (0, 65535], got %d", c.StartPort)
	}
	return nil
}

// defaultStorePath 返回默认的存储文件路径
func defaultStorePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".portgate", "port_mappings.json")
}
