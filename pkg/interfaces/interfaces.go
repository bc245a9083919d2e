// Package interfaces 定义 portgate 核心组件的公共契约
//
// 外部协作方（请求接入前端、只读展示端）只依赖本包，
// 不依赖 internal 下的具体实现。
package interfaces

import (
	"context"

	"github.com/portgate/go-portgate/pkg/types"
)

// ============================================================================
//                              映射存储
// ============================================================================

// MappingStore 映射存储契约
//
// (host, protocol) → 外部端口 的持久注册表。
// Resolve 对并发调用线性化：同一新键的并发请求只产生一次分配。
type MappingStore interface {
	// Resolve 返回键已有的外部端口；不存在时分配、持久化并返回
	//
	// 持久化失败时分配不生效，错误返回给调用方。
	Resolve(host string, protocol types.Protocol) (int, error)

	// Load 返回完整映射集合
	Load() ([]types.Mapping, error)

	// Persist 全量落盘，替换原有内容
	Persist(mappings []types.Mapping) error

	// Delete 管理性删除一条映射
	//
	// 返回被释放的外部端口；键不存在时 found 为 false。
	// 释放的端口不会被重新分配。
	Delete(host string, protocol types.Protocol) (port int, found bool, err error)
}

// ============================================================================
//                              代理注册表
// ============================================================================

// ProxyRegistry 活跃监听器注册表与生命周期管理契约
//
// 同一端口的生命周期迁移串行化；不同端口相互独立。
type ProxyRegistry interface {
	// Ensure 确保指定端口上运行着指向 (host, remotePort) 的监听器
	//
	// 端口空闲 → 绑定并启动；目标相同 → 幂等无操作；
	// 目标不同 → 先停旧再启新（last-writer-wins），
	// 旧监听器上已建立的连接不被强制关闭。
	// 绑定失败同步返回错误，注册表回滚到 absent。
	Ensure(ctx context.Context, externalPort int, host string, remotePort int) error

	// Stop 停止指定端口的监听器
	//
	// 先关闭监听 socket 使接受循环退出，再有界等待其确认。
	// 端口本就空闲时返回 ErrNotRunning。
	Stop(externalPort int) error

	// StopAll 停止所有活跃监听器，错误聚合返回
	StopAll() error

	// Snapshot 返回注册表的只读快照
	Snapshot() []types.ProxySnapshot
}

// ============================================================================
//                              带宽报告
// ============================================================================

// BandwidthReporter 带宽统计只读接口
type BandwidthReporter interface {
	// Totals 返回全局带宽统计
	Totals() types.BandwidthStats

	// ForPort 返回指定外部端口的带宽统计
	ForPort(externalPort int) types.BandwidthStats

	// AcceptedTotal 返回累计接受的连接数
	AcceptedTotal() int64
}

// ============================================================================
//                              引擎
// ============================================================================

// Engine 端口转发引擎门面
//
// 请求接入前端和展示协作方只通过该接口与核心交互。
type Engine interface {
	// RequestForward 为 (host, protocol) 请求转发，返回外部端口
	//
	// 不支持的协议返回 types.ErrUnsupportedProtocol，
	// 不产生任何分配，也不启动任何监听器。
	RequestForward(ctx context.Context, host, protocol string) (int, error)

	// Drop 管理性删除一条映射并停止其监听器
	Drop(ctx context.Context, host, protocol string) error

	// Mappings 返回持久化的映射集合（只读）
	Mappings() ([]types.Mapping, error)

	// Status 返回代理注册表快照（只读）
	Status() []types.ProxySnapshot

	// Bootstrap 从映射存储重建所有监听器
	//
	// 显式可重入：对已运行的端口为无操作。
	Bootstrap(ctx context.Context) (types.BootstrapSummary, error)

	// Shutdown 停止所有活跃监听器
	Shutdown(ctx context.Context) error
}
